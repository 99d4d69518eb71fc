// Package bundle holds DataBundle, the mutable container of named arrays, row ids,
// feature dictionaries and attached feature sets that strategies pass along a pipeline.
//
// A DataBundle has a single owner at a time and does no locking; callers serialise
// access.
package bundle

import (
	"sort"
	"time"

	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/google/uuid"
)

// EntityName is reported by Describe.
const EntityName = "data_bundle"

// FeatureDict maps a feature name to its index along the feature axis.
type FeatureDict map[string]int

// Clone copies the dictionary.
func (d FeatureDict) Clone() FeatureDict {
	if d == nil {
		return nil
	}
	out := make(FeatureDict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Indices resolves names in order. Names absent from the dictionary are returned in
// missing and contribute no index.
func (d FeatureDict) Indices(names []string) (indices []int, missing []string) {
	for _, n := range names {
		if i, ok := d[n]; ok {
			indices = append(indices, i)
		} else {
			missing = append(missing, n)
		}
	}
	return indices, missing
}

// Dataset is a batch of slot values: *ndarray.Array, []int64 or FeatureDict by key kind.
type Dataset map[Key]any

// DataBundle is the unit of work passed between strategies.
type DataBundle struct {
	id          uuid.UUID
	createdAt   time.Time
	dataset     map[Key]any
	featureSets []*featureset.FeatureSet
}

// New creates an empty bundle with a fresh identity.
func New() *DataBundle {
	return &DataBundle{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		dataset:   make(map[Key]any),
	}
}

func (b *DataBundle) ID() uuid.UUID        { return b.id }
func (b *DataBundle) CreatedAt() time.Time { return b.createdAt }

// Has reports whether k holds a value.
func (b *DataBundle) Has(k Key) bool {
	_, ok := b.dataset[k]
	return ok
}

// Keys returns the populated keys, sorted.
func (b *DataBundle) Keys() []Key {
	out := make([]Key, 0, len(b.dataset))
	for k := range b.dataset {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Require returns a precondition error naming the first absent key.
func (b *DataBundle) Require(keys ...Key) error {
	for _, k := range keys {
		if !b.Has(k) {
			return errors.MissingDataset(string(k))
		}
	}
	return nil
}

func (b *DataBundle) lookup(k Key, want Kind) (any, error) {
	v, ok := b.dataset[k]
	if !ok {
		return nil, errors.MissingDataset(string(k))
	}
	if KindOf(k) != want {
		return nil, errors.Preconditionf("%s holds %s, not %s", k, KindOf(k), want)
	}
	return v, nil
}

// Array returns the array stored under k. The array is shared with the bundle; callers
// must not modify it in place.
func (b *DataBundle) Array(k Key) (*ndarray.Array, error) {
	v, err := b.lookup(k, KindArray)
	if err != nil {
		return nil, err
	}
	return v.(*ndarray.Array), nil
}

// RowIDs returns a copy of the row ids stored under k.
func (b *DataBundle) RowIDs(k Key) ([]int64, error) {
	v, err := b.lookup(k, KindRowIDs)
	if err != nil {
		return nil, err
	}
	return append([]int64(nil), v.([]int64)...), nil
}

// FeatureDict returns a copy of the feature dictionary stored under k.
func (b *DataBundle) FeatureDict(k Key) (FeatureDict, error) {
	v, err := b.lookup(k, KindFeatureDict)
	if err != nil {
		return nil, err
	}
	return v.(FeatureDict).Clone(), nil
}

func (b *DataBundle) SetArray(k Key, a *ndarray.Array) error {
	return b.SetDataset(Dataset{k: a})
}

func (b *DataBundle) SetRowIDs(k Key, ids []int64) error {
	return b.SetDataset(Dataset{k: ids})
}

func (b *DataBundle) SetFeatureDict(k Key, d FeatureDict) error {
	return b.SetDataset(Dataset{k: d})
}

// SetDataset merges ds into the bundle. Every entry is checked before anything is
// written, so a rejected batch leaves the bundle unchanged.
func (b *DataBundle) SetDataset(ds Dataset) error {
	for k, v := range ds {
		if err := checkSlot(k, v); err != nil {
			return err
		}
	}
	for k, v := range ds {
		switch val := v.(type) {
		case []int64:
			b.dataset[k] = append([]int64(nil), val...)
		case FeatureDict:
			b.dataset[k] = val.Clone()
		default:
			b.dataset[k] = val
		}
	}
	return nil
}

func checkSlot(k Key, v any) error {
	kind := KindOf(k)
	ok := false
	switch val := v.(type) {
	case *ndarray.Array:
		ok = kind == KindArray && val != nil
	case []int64:
		ok = kind == KindRowIDs
	case FeatureDict:
		ok = kind == KindFeatureDict && val != nil
	}
	if kind == KindUnknown {
		return errors.Preconditionf("unknown dataset key %q", k).WithField("invalid", string(k), "unknown key")
	}
	if !ok {
		return errors.Preconditionf("%s expects %s, got %T", k, kind, v).WithField("invalid", string(k), "wrong type")
	}
	return nil
}

// Dataset returns a copy of every populated slot. Arrays are shared.
func (b *DataBundle) Dataset() Dataset {
	ds := make(Dataset, len(b.dataset))
	for k, v := range b.dataset {
		ds[k] = v
	}
	return ds
}

// Delete removes k if present.
func (b *DataBundle) Delete(k Key) { delete(b.dataset, k) }

// AttachFeatureSets replaces the attached feature sets, keeping their order.
func (b *DataBundle) AttachFeatureSets(sets []*featureset.FeatureSet) {
	b.featureSets = append([]*featureset.FeatureSet(nil), sets...)
}

// FeatureSets returns the attached feature sets. The slice is a copy; the feature sets
// are shared.
func (b *DataBundle) FeatureSets() []*featureset.FeatureSet {
	return append([]*featureset.FeatureSet(nil), b.featureSets...)
}

func (b *DataBundle) HasFeatureSets() bool { return len(b.featureSets) > 0 }

// View is the diagnostic description of a bundle. Shapes lists every array and row-id
// slot of the vocabulary, nil when absent.
type View struct {
	ID          string                   `json:"id" yaml:"id"`
	EntityName  string                   `json:"entity_name" yaml:"entity_name"`
	FeatureSets []featureset.Description `json:"feature_sets" yaml:"feature_sets"`
	Shapes      map[Key][]int            `json:"shapes" yaml:"shapes"`
}

func (b *DataBundle) Describe() View {
	v := View{
		ID:          b.id.String(),
		EntityName:  EntityName,
		FeatureSets: make([]featureset.Description, 0, len(b.featureSets)),
		Shapes:      make(map[Key][]int),
	}
	for _, fs := range b.featureSets {
		v.FeatureSets = append(v.FeatureSets, fs.Describe())
	}
	for _, k := range ArrayKeys {
		v.Shapes[k] = nil
		if a, ok := b.dataset[k].(*ndarray.Array); ok {
			v.Shapes[k] = a.Shape()
		}
	}
	for _, k := range []Key{RowIDs, TrainRowIDs, TestRowIDs} {
		v.Shapes[k] = nil
		if ids, ok := b.dataset[k].([]int64); ok {
			v.Shapes[k] = []int{len(ids)}
		}
	}
	return v
}

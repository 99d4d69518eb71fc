package bundle

import (
	"time"

	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/internal/scaling/scaler"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/google/uuid"
)

// Snapshot is the serialisable form of a bundle kept by the store.
type Snapshot struct {
	ID           string                   `json:"id"`
	CreatedAt    time.Time                `json:"created_at"`
	Arrays       map[Key]*ndarray.Array   `json:"arrays,omitempty"`
	RowIDs       map[Key][]int64          `json:"row_ids,omitempty"`
	FeatureDicts map[Key]FeatureDict      `json:"feature_dicts,omitempty"`
	FeatureSets  []featureset.Description `json:"feature_sets,omitempty"`
}

// Snapshot copies the bundle's dataset and feature set descriptions.
func (b *DataBundle) Snapshot() *Snapshot {
	s := &Snapshot{
		ID:           b.id.String(),
		CreatedAt:    b.createdAt,
		Arrays:       make(map[Key]*ndarray.Array),
		RowIDs:       make(map[Key][]int64),
		FeatureDicts: make(map[Key]FeatureDict),
	}
	for k, v := range b.dataset {
		switch val := v.(type) {
		case *ndarray.Array:
			s.Arrays[k] = val.Clone()
		case []int64:
			s.RowIDs[k] = append([]int64(nil), val...)
		case FeatureDict:
			s.FeatureDicts[k] = val.Clone()
		}
	}
	for _, fs := range b.featureSets {
		s.FeatureSets = append(s.FeatureSets, fs.Describe())
	}
	return s
}

// FromSnapshot rebuilds a bundle. Feature sets are restored with fresh, unfitted
// scalers.
func FromSnapshot(s *Snapshot) (*DataBundle, error) {
	if s == nil {
		return nil, errors.Preconditionf("nil snapshot")
	}
	b := New()
	if s.ID != "" {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, errors.Preconditionf("invalid snapshot id %q", s.ID).Wrap(err)
		}
		b.id = id
	}
	if !s.CreatedAt.IsZero() {
		b.createdAt = s.CreatedAt
	}
	ds := make(Dataset, len(s.Arrays)+len(s.RowIDs)+len(s.FeatureDicts))
	for k, v := range s.Arrays {
		ds[k] = v
	}
	for k, v := range s.RowIDs {
		ds[k] = v
	}
	for k, v := range s.FeatureDicts {
		ds[k] = v
	}
	if err := b.SetDataset(ds); err != nil {
		return nil, err
	}
	sets := make([]*featureset.FeatureSet, 0, len(s.FeatureSets))
	for _, d := range s.FeatureSets {
		sc, err := scaler.New(d.ScalerName)
		if err != nil {
			return nil, err
		}
		fs, err := featureset.New(d.FeatureSetType, d.FeatureList, d.SecondaryFeatureList, d.DoFitTest, sc)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fs)
	}
	if len(sets) > 0 {
		b.AttachFeatureSets(sets)
	}
	return b, nil
}

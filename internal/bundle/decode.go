package bundle

import (
	"reflect"

	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/spf13/cast"
)

// DecodeDataset converts loosely typed values, as decoded from YAML, JSON or a param
// config, into a Dataset. Keys outside the vocabulary are rejected.
func DecodeDataset(raw map[string]any) (Dataset, error) {
	ds := make(Dataset, len(raw))
	for name, v := range raw {
		k, ok := ParseKey(name)
		if !ok {
			return nil, errors.Preconditionf("unknown dataset key %q", name).
				WithField("invalid", name, "unknown key")
		}
		val, err := decodeValue(k, v)
		if err != nil {
			return nil, errors.Preconditionf("cannot decode %s as %s", k, KindOf(k)).
				WithField("invalid", name, err.Error()).
				Wrap(err)
		}
		ds[k] = val
	}
	return ds, nil
}

func decodeValue(k Key, v any) (any, error) {
	switch KindOf(k) {
	case KindArray:
		if a, ok := v.(*ndarray.Array); ok {
			return a.Clone(), nil
		}
		return ndarray.FromNested(v)
	case KindRowIDs:
		return ToRowIDs(v)
	case KindFeatureDict:
		return ToFeatureDict(v)
	}
	return nil, errors.Preconditionf("unknown dataset key %q", k)
}

// ToRowIDs coerces a slice of numbers into row ids.
func ToRowIDs(v any) ([]int64, error) {
	if ids, ok := v.([]int64); ok {
		return append([]int64(nil), ids...), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Preconditionf("row ids must be a list, got %T", v)
	}
	out := make([]int64, rv.Len())
	for i := range out {
		id, err := cast.ToInt64E(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// ToFeatureDict coerces a name→index mapping.
func ToFeatureDict(v any) (FeatureDict, error) {
	if d, ok := v.(FeatureDict); ok {
		return d.Clone(), nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	out := make(FeatureDict, len(m))
	for name, idx := range m {
		i, err := cast.ToIntE(idx)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, errors.Preconditionf("negative index %d for feature %q", i, name)
		}
		out[name] = i
	}
	return out, nil
}

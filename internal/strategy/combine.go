package strategy

import (
	"context"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"go.uber.org/zap"
)

// RetValDataBundle is the return slot CombineDataBundles fills.
const RetValDataBundle = bundle.EntityName

// combinedKeys are concatenated along the sample axis; any other key except the feature
// dictionaries is left out of the combined bundle.
var combinedKeys = []bundle.Key{bundle.X, bundle.Y, bundle.RowIDs, bundle.XTrain, bundle.YTrain, bundle.XTest, bundle.YTest}

// CombineDataBundles merges bundles with identical key sets into a new bundle. Feature
// dictionaries come from the first bundle; the first bundle's feature sets are shared
// with the result. The inputs are never modified.
type CombineDataBundles struct {
	base
}

func NewCombineDataBundles(req *Request, deps Deps) Strategy {
	return &CombineDataBundles{newBase("CombineDataBundles", req, deps)}
}

func (s *CombineDataBundles) VerifyExecutable(bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	keys := bundles[0].Keys()
	for i, b := range bundles[1:] {
		if !sameKeys(keys, b.Keys()) {
			return errors.Consistencyf("DataBundles do not have the same keys: bundle 0 has %v, bundle %d has %v", keys, i+1, b.Keys())
		}
	}
	return nil
}

func sameKeys(a, b []bundle.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *CombineDataBundles) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	first := bundles[0]
	ds := bundle.Dataset{}
	for _, k := range []bundle.Key{bundle.XFeatureDict, bundle.YFeatureDict} {
		if first.Has(k) {
			d, err := first.FeatureDict(k)
			if err != nil {
				return err
			}
			ds[k] = d
		}
	}
	for _, k := range combinedKeys {
		if !first.Has(k) {
			continue
		}
		v, err := concatKey(bundles, k)
		if err != nil {
			return err
		}
		ds[k] = v
	}

	combined := bundle.New()
	if err := combined.SetDataset(ds); err != nil {
		return err
	}
	if first.HasFeatureSets() {
		combined.AttachFeatureSets(first.FeatureSets())
	}
	s.setRetVal(RetValDataBundle, combined)
	s.logger.Debug("Combined data bundles",
		zap.Int("inputs", len(bundles)),
		zap.Stringer("bundle_id", combined.ID()))
	return nil
}

// concatKey joins key k of every bundle in order: arrays along axis 0, row ids by append.
func concatKey(bundles []*bundle.DataBundle, k bundle.Key) (any, error) {
	if bundle.KindOf(k) == bundle.KindRowIDs {
		var out []int64
		for _, b := range bundles {
			ids, err := b.RowIDs(k)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	}
	arrays := make([]*ndarray.Array, 0, len(bundles))
	for _, b := range bundles {
		a, err := b.Array(k)
		if err != nil {
			return nil, err
		}
		arrays = append(arrays, a)
	}
	out, err := ndarray.Concat(arrays...)
	if err != nil {
		return nil, errors.Preconditionf("cannot concatenate %s", k).WithField("invalid", string(k), "shape mismatch").Wrap(err)
	}
	return out, nil
}

func (s *CombineDataBundles) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{}}
}

// Return slots filled by CombineScaledDataBundles.
const (
	RetValXTrain      = "X_train"
	RetValXTest       = "X_test"
	RetValYTrain      = "y_train"
	RetValYTest       = "y_test"
	RetValTrainRowIDs = "train_row_ids"
	RetValTestRowIDs  = "test_row_ids"
)

// CombineScaledDataBundles concatenates the scaled train/test arrays and their
// per-partition row ids into training arrays placed in the return slot.
type CombineScaledDataBundles struct {
	base
}

func NewCombineScaledDataBundles(req *Request, deps Deps) Strategy {
	return &CombineScaledDataBundles{newBase("CombineScaledDataBundles", req, deps)}
}

var scaledInputs = []struct {
	key    bundle.Key
	retVal string
}{
	{bundle.XTrainScaled, RetValXTrain},
	{bundle.XTestScaled, RetValXTest},
	{bundle.YTrainScaled, RetValYTrain},
	{bundle.YTestScaled, RetValYTest},
	{bundle.TrainRowIDs, RetValTrainRowIDs},
	{bundle.TestRowIDs, RetValTestRowIDs},
}

func (s *CombineScaledDataBundles) VerifyExecutable(bundles []*bundle.DataBundle) error {
	return verifyEach(s.name, bundles, func(b *bundle.DataBundle) error {
		for _, in := range scaledInputs {
			if err := b.Require(in.key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Apply computes every output before filling the return slot.
func (s *CombineScaledDataBundles) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	out := make(map[string]any, len(scaledInputs))
	for _, in := range scaledInputs {
		v, err := concatKey(bundles, in.key)
		if err != nil {
			return err
		}
		out[in.retVal] = v
	}
	for k, v := range out {
		s.setRetVal(k, v)
	}
	return nil
}

func (s *CombineScaledDataBundles) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{}}
}

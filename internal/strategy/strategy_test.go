package strategy

import (
	"context"
	"testing"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/store"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(Deps{Logger: zaptest.NewLogger(t), Store: store.NewMemoryStore()})
}

// run resolves, verifies and applies one strategy, returning its request.
func run(t *testing.T, r *Registry, name string, params map[string]any, bundles ...*bundle.DataBundle) (*Request, error) {
	t.Helper()
	req := NewRequest(name, params)
	s, err := r.Create(req)
	require.NoError(t, err)
	if err := s.VerifyExecutable(bundles); err != nil {
		return req, err
	}
	return req, s.Apply(context.Background(), bundles)
}

// windowed returns a bundle holding the five (2, 2) windows of a small price table.
func windowed(t *testing.T, firstID int64) *bundle.DataBundle {
	t.Helper()
	b := bundle.New()
	require.NoError(t, b.SetDataset(bundle.Dataset{
		bundle.X: ndarray.MustNew([]int{5, 2, 2}, []float64{
			1, 2, 2, 1.5,
			2, 1.5, 3, 2.5,
			3, 2.5, 4, 4,
			4, 4, 5, 5,
			5, 5, 6, 6,
		}),
		bundle.Y:            ndarray.MustNew([]int{5, 1, 1}, []float64{3, 4, 5, 6, 7}),
		bundle.RowIDs:       []int64{firstID, firstID + 1, firstID + 2, firstID + 3, firstID + 4},
		bundle.XFeatureDict: bundle.FeatureDict{"open": 0, "high": 1},
		bundle.YFeatureDict: bundle.FeatureDict{"close+1": 0},
	}))
	return b
}

var dates = []any{"2020-01-01", "2020-01-02", "2020-01-03", "2020-01-04", "2020-01-05"}

func TestRegistry(t *testing.T) {
	r := newRegistry(t)
	assert.Equal(t, []string{
		"CombineDataBundles",
		"CombineScaledDataBundles",
		"CreateFeatureSets",
		"CreateSequenceWindows",
		"LoadDataBundleData",
		"LoadDataBundleFromStore",
		"SaveDataBundle",
		"ScaleByFeatureSets",
		"SplitBundleDate",
	}, r.Names())

	available := r.Available()
	require.Len(t, available, 9)
	for i, rc := range available {
		assert.Equal(t, r.Names()[i], rc.StrategyName)
		assert.Nil(t, rc.StrategyPath)
		assert.NotNil(t, rc.ParamConfig)
	}

	_, err := r.Create(NewRequest("Nope", nil))
	assert.True(t, errors.Is(err, errors.Configuration))
	assert.Equal(t, "strategy_name", errors.FieldOf(err))

	assert.Error(t, r.Register(NewSplitBundleDate))
}

func TestLoadDataBundleData(t *testing.T) {
	r := newRegistry(t)
	b := bundle.New()
	_, err := run(t, r, "LoadDataBundleData", map[string]any{
		"X":       [][][]float64{{{1, 2}}, {{3, 4}}},
		"y":       []any{[]any{[]any{5}}, []any{[]any{6}}},
		"row_ids": []int{1, 2},
	}, b)
	require.NoError(t, err)
	x, err := b.Array(bundle.X)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, x.Shape())
	ids, _ := b.RowIDs(bundle.RowIDs)
	assert.Equal(t, []int64{1, 2}, ids)

	_, err = run(t, r, "LoadDataBundleData", map[string]any{"Z": 1}, b)
	assert.Equal(t, "Z", errors.FieldOf(err))
}

func TestStoreRoundTrip(t *testing.T) {
	r := newRegistry(t)
	a, b := windowed(t, 1), windowed(t, 6)
	_, err := run(t, r, "SaveDataBundle", map[string]any{"bundle_keys": []string{"a", "b"}}, a, b)
	require.NoError(t, err)

	loaded := bundle.New()
	_, err = run(t, r, "LoadDataBundleFromStore", map[string]any{"bundle_keys": []any{"b"}}, loaded)
	require.NoError(t, err)
	ids, err := loaded.RowIDs(bundle.RowIDs)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7, 8, 9, 10}, ids)

	_, err = run(t, r, "LoadDataBundleFromStore", map[string]any{"bundle_keys": []string{"missing"}}, bundle.New())
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = run(t, r, "SaveDataBundle", map[string]any{"bundle_keys": []string{"a"}}, a, b)
	assert.Equal(t, "bundle_keys", errors.FieldOf(err))

	_, err = run(t, r, "SaveDataBundle", map[string]any{}, a)
	assert.Equal(t, "bundle_keys", errors.FieldOf(err))

	noStore := NewRegistry(Deps{})
	_, err = run(t, noStore, "SaveDataBundle", map[string]any{"bundle_keys": []string{"a"}}, a)
	assert.Equal(t, "store", errors.FieldOf(err))
}

func TestCreateSequenceWindows(t *testing.T) {
	r := newRegistry(t)
	params := map[string]any{
		"table": [][]float64{
			{1, 2, 2},
			{2, 1.5, 3},
			{3, 2.5, 4},
			{4, 4, 5},
			{5, 5, 6},
		},
		"feature_dict":    map[string]any{"open": 0, "high": 1, "close+1": 2},
		"sequence_length": 2,
		"X_features":      []string{"open", "high"},
		"y_features":      []string{"close+1"},
		"row_ids":         []int{11, 12, 13, 14, 15},
	}
	b := bundle.New()
	_, err := run(t, r, "CreateSequenceWindows", params, b)
	require.NoError(t, err)

	x, _ := b.Array(bundle.X)
	y, _ := b.Array(bundle.Y)
	assert.Equal(t, []int{4, 2, 2}, x.Shape())
	assert.Equal(t, []int{4, 1, 1}, y.Shape())
	assert.Equal(t, []float64{1, 2, 2, 1.5, 2, 1.5, 3, 2.5, 3, 2.5, 4, 4, 4, 4, 5, 5}, x.Data())
	assert.Equal(t, []float64{3, 4, 5, 6}, y.Data())
	ids, _ := b.RowIDs(bundle.RowIDs)
	assert.Equal(t, []int64{12, 13, 14, 15}, ids)
	xd, _ := b.FeatureDict(bundle.XFeatureDict)
	assert.Equal(t, bundle.FeatureDict{"open": 0, "high": 1}, xd)

	params["sequence_length"] = 6
	_, err = run(t, r, "CreateSequenceWindows", params, bundle.New())
	assert.Equal(t, "sequence_length", errors.FieldOf(err))

	params["sequence_length"] = 2
	params["X_features"] = []string{"volume"}
	_, err = run(t, r, "CreateSequenceWindows", params, bundle.New())
	assert.Equal(t, "X_features", errors.FieldOf(err))

	delete(params, "table")
	_, err = run(t, r, "CreateSequenceWindows", params, bundle.New())
	assert.Equal(t, "table", errors.FieldOf(err))
}

func TestScaleByFeatureSetsNeedsSplitAndFeatureSets(t *testing.T) {
	r := newRegistry(t)
	b := windowed(t, 1)
	_, err := run(t, r, "ScaleByFeatureSets", nil, b)
	require.Error(t, err)
	assert.Equal(t, "X_train", errors.FieldOf(err))

	_, err = run(t, r, "SplitBundleDate", map[string]any{"split_date": "2020-01-04", "date_list": dates}, b)
	require.NoError(t, err)
	_, err = run(t, r, "ScaleByFeatureSets", nil, b)
	assert.Equal(t, "feature_sets", errors.FieldOf(err))
}

func xFeatureSets(features ...any) map[string]any {
	return map[string]any{"feature_set_configs": []any{
		map[string]any{
			"feature_set_type": "X",
			"feature_list":     features,
			"scaler_config":    map[string]any{"scaler_name": "MIN_MAX_SCALER"},
			"do_fit_test":      false,
		},
	}}
}

func TestScaleByFeatureSetsLeavesBundlesUntouchedOnFailure(t *testing.T) {
	r := newRegistry(t)
	a, b := windowed(t, 1), windowed(t, 6)
	_, err := run(t, r, "SplitBundleDate", map[string]any{"split_date": "2020-01-04", "date_list": dates}, a, b)
	require.NoError(t, err)
	_, err = run(t, r, "CreateFeatureSets", xFeatureSets("open"), a)
	require.NoError(t, err)
	_, err = run(t, r, "CreateFeatureSets", xFeatureSets("volume"), b)
	require.NoError(t, err)

	_, err = run(t, r, "ScaleByFeatureSets", nil, a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Precondition))
	assert.Equal(t, "volume", errors.FieldOf(err))
	assert.False(t, a.Has(bundle.XTrainScaled))
	assert.False(t, b.Has(bundle.XTrainScaled))
}

func TestPipelineEndToEnd(t *testing.T) {
	r := newRegistry(t)
	a, b := windowed(t, 1), windowed(t, 6)

	_, err := run(t, r, "SplitBundleDate", map[string]any{"split_date": "2020-01-04", "date_list": dates}, a, b)
	require.NoError(t, err)
	_, err = run(t, r, "CreateFeatureSets", map[string]any{"feature_set_configs": []any{
		map[string]any{
			"feature_set_type": "X",
			"feature_list":     []any{"open", "high"},
			"scaler_config":    map[string]any{"scaler_name": "MEAN_VARIANCE_SCALER_3D"},
			"do_fit_test":      false,
		},
		map[string]any{
			"feature_set_type": "y",
			"feature_list":     []any{"close+1"},
			"scaler_config":    map[string]any{"scaler_name": "MIN_MAX_SCALER"},
			"do_fit_test":      false,
		},
	}}, a, b)
	require.NoError(t, err)
	assert.NotSame(t, a.FeatureSets()[0].Scaler(), b.FeatureSets()[0].Scaler())

	_, err = run(t, r, "ScaleByFeatureSets", nil, a, b)
	require.NoError(t, err)

	req, err := run(t, r, "CombineScaledDataBundles", nil, a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 2, 2}, req.RetVal[RetValXTrain].(*ndarray.Array).Shape())
	assert.Equal(t, []int{4, 2, 2}, req.RetVal[RetValXTest].(*ndarray.Array).Shape())
	assert.Equal(t, []int64{1, 2, 3, 6, 7, 8}, req.RetVal[RetValTrainRowIDs])
	assert.Equal(t, []int64{4, 5, 9, 10}, req.RetVal[RetValTestRowIDs])

	yTrain := req.RetVal[RetValYTrain].(*ndarray.Array)
	assert.Equal(t, []float64{0, 0.5, 1, 0, 0.5, 1}, yTrain.Data())
}

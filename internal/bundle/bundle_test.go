package bundle

import (
	"encoding/json"
	"testing"

	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/internal/scaling/scaler"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	b := New()
	x := ndarray.Zeros(5, 2, 2)
	require.NoError(t, b.SetDataset(Dataset{
		X:            x,
		RowIDs:       []int64{1, 2, 3, 4, 5},
		XFeatureDict: FeatureDict{"open": 0, "high": 1},
	}))

	got, err := b.Array(X)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2, 2}, got.Shape())

	ids, err := b.RowIDs(RowIDs)
	require.NoError(t, err)
	ids[0] = 99
	again, _ := b.RowIDs(RowIDs)
	assert.Equal(t, int64(1), again[0])

	dict, err := b.FeatureDict(XFeatureDict)
	require.NoError(t, err)
	dict["close"] = 2
	again2, _ := b.FeatureDict(XFeatureDict)
	assert.Len(t, again2, 2)

	assert.Equal(t, []Key{X, XFeatureDict, RowIDs}, b.Keys())
}

func TestSetDatasetRejectsWholeBatch(t *testing.T) {
	b := New()
	err := b.SetDataset(Dataset{
		X:      ndarray.Zeros(1, 1),
		RowIDs: ndarray.Zeros(1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Precondition))
	assert.False(t, b.Has(X))

	assert.Error(t, b.SetArray("bogus", ndarray.Zeros(1)))
	assert.Error(t, b.SetFeatureDict(X, FeatureDict{}))
	assert.Error(t, b.SetArray(X, nil))
}

func TestRequireNamesFirstMissing(t *testing.T) {
	b := New()
	require.NoError(t, b.SetArray(X, ndarray.Zeros(1, 1)))
	err := b.Require(X, Y, RowIDs)
	require.Error(t, err)
	assert.Equal(t, "y", errors.FieldOf(err))
	assert.Contains(t, err.Error(), "Missing y in dataset")
	assert.NoError(t, b.Require(X))

	_, err = b.Array(XTrain)
	assert.True(t, errors.Is(err, errors.Precondition))
	_, err = b.RowIDs(X)
	assert.Error(t, err)
}

func TestFeatureSetsAttachment(t *testing.T) {
	b := New()
	assert.False(t, b.HasFeatureSets())
	fs, err := featureset.New(featureset.TypeX, []string{"open"}, nil, false, scaler.NewMeanVariance())
	require.NoError(t, err)
	b.AttachFeatureSets([]*featureset.FeatureSet{fs})
	assert.True(t, b.HasFeatureSets())
	got := b.FeatureSets()
	require.Len(t, got, 1)
	assert.Same(t, fs, got[0])
}

func TestDescribe(t *testing.T) {
	b := New()
	require.NoError(t, b.SetArray(XTrain, ndarray.Zeros(3, 2, 2)))
	require.NoError(t, b.SetRowIDs(TrainRowIDs, []int64{1, 2, 3}))

	v := b.Describe()
	assert.Equal(t, EntityName, v.EntityName)
	assert.Equal(t, b.ID().String(), v.ID)
	assert.Equal(t, []int{3, 2, 2}, v.Shapes[XTrain])
	assert.Equal(t, []int{3}, v.Shapes[TrainRowIDs])
	assert.Nil(t, v.Shapes[XTest])
	_, listed := v.Shapes[XTest]
	assert.True(t, listed)
	assert.Empty(t, v.FeatureSets)
}

func TestSnapshotRoundTrip(t *testing.T) {
	b := New()
	require.NoError(t, b.SetDataset(Dataset{
		X:            ndarray.MustNew([]int{2, 1, 2}, []float64{1, 2, 3, 4}),
		RowIDs:       []int64{10, 11},
		XFeatureDict: FeatureDict{"open": 0, "high": 1},
	}))
	fs, _ := featureset.New(featureset.TypeX, []string{"open"}, nil, true, scaler.NewTimeStep())
	b.AttachFeatureSets([]*featureset.FeatureSet{fs})

	raw, err := json.Marshal(b.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	restored, err := FromSnapshot(&snap)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), restored.ID())
	assert.Equal(t, b.Keys(), restored.Keys())

	x, _ := restored.Array(X)
	assert.Equal(t, []float64{1, 2, 3, 4}, x.Data())
	ids, _ := restored.RowIDs(RowIDs)
	assert.Equal(t, []int64{10, 11}, ids)

	sets := restored.FeatureSets()
	require.Len(t, sets, 1)
	assert.Equal(t, fs.Describe(), sets[0].Describe())
	assert.NotSame(t, fs.Scaler(), sets[0].Scaler())
}

func TestDecodeDataset(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"X": [[[1, 2]], [[3, 4]]],
		"row_ids": [7, 8],
		"X_feature_dict": {"open": 0, "high": 1}
	}`), &raw))

	ds, err := DecodeDataset(raw)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, ds[X].(*ndarray.Array).Shape())
	assert.Equal(t, []int64{7, 8}, ds[RowIDs])
	assert.Equal(t, FeatureDict{"open": 0, "high": 1}, ds[XFeatureDict])

	_, err = DecodeDataset(map[string]any{"nope": 1})
	assert.Equal(t, "nope", errors.FieldOf(err))
	_, err = DecodeDataset(map[string]any{"row_ids": "abc"})
	assert.Equal(t, "row_ids", errors.FieldOf(err))
}

func TestFeatureDictIndices(t *testing.T) {
	d := FeatureDict{"a": 0, "b": 1, "c": 2}
	idx, missing := d.Indices([]string{"c", "x", "a"})
	assert.Equal(t, []int{2, 0}, idx)
	assert.Equal(t, []string{"x"}, missing)
}

package scaler

import (
	"math"
	"testing"

	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// (4, 2, 2) training windows over open/high.
func xTrain() *ndarray.Array {
	return ndarray.MustNew([]int{4, 2, 2}, []float64{
		1, 2, 2, 1.5,
		2, 1.5, 3, 2.5,
		3, 2.5, 4, 4,
		4, 4, 5, 5,
	})
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	assert.Len(t, Names(), 5)

	_, err := New("NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Configuration))
	assert.Equal(t, "scaler_name", errors.FieldOf(err))
}

func TestNewReturnsFreshInstances(t *testing.T) {
	a, _ := New(MeanVariance3D)
	b, _ := New(MeanVariance3D)
	assert.NotSame(t, a, b)
}

func TestMeanVarianceStandardisesPerFeature(t *testing.T) {
	s := NewMeanVariance()
	out, err := s.FitTransform(xTrain())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 2}, out.Shape())

	for f := 0; f < 2; f++ {
		var sum, sq float64
		for i := 0; i < 4; i++ {
			for ts := 0; ts < 2; ts++ {
				v := out.At(i, ts, f)
				sum += v
				sq += v * v
			}
		}
		assert.InDelta(t, 0, sum/8, 1e-12)
		assert.InDelta(t, 1, sq/8, 1e-12)
	}

	back, err := s.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, back.EqualApprox(xTrain(), 1e-12))
}

func TestTransformUsesTrainFit(t *testing.T) {
	s := NewMeanVariance()
	_, err := s.FitTransform(xTrain())
	require.NoError(t, err)

	test := ndarray.MustNew([]int{1, 2, 2}, []float64{4, 4, 5, 5})
	got, err := s.Transform(test)
	require.NoError(t, err)

	// feature 0 over train: values 1,2,2,3,3,4,4,5
	mean := 3.0
	std := math.Sqrt((4 + 1 + 1 + 0 + 0 + 1 + 1 + 4) / 8.0)
	assert.InDelta(t, (4-mean)/std, got.At(0, 0, 0), 1e-12)
	assert.InDelta(t, (5-mean)/std, got.At(0, 1, 0), 1e-12)
}

func TestNotFitted(t *testing.T) {
	for _, name := range Names() {
		s, _ := New(name)
		_, err := s.Transform(xTrain())
		assert.True(t, errors.Is(err, errors.Precondition), name)
		_, err = s.InverseTransform(xTrain())
		assert.True(t, errors.Is(err, errors.Precondition), name)
	}
}

func TestFeatureCountMismatch(t *testing.T) {
	s := NewMeanVariance()
	_, err := s.FitTransform(xTrain())
	require.NoError(t, err)
	_, err = s.Transform(ndarray.Zeros(1, 2, 3))
	assert.Error(t, err)
}

func TestTimeStepPerCell(t *testing.T) {
	y := ndarray.MustNew([]int{4, 2, 1}, []float64{3, 4, 4, 5, 5, 6, 6, 7})
	s := NewTimeStep()
	out, err := s.FitTransform(y)
	require.NoError(t, err)
	// each time-step column is 3,4,5,6 or 4,5,6,7: identical z-scores
	for i := 0; i < 4; i++ {
		assert.InDelta(t, out.At(i, 0, 0), out.At(i, 1, 0), 1e-12)
	}
	_, err = s.Transform(ndarray.Zeros(1, 3, 1))
	assert.Error(t, err)
	_, err = s.FitTransform(ndarray.Zeros(2, 2))
	assert.Error(t, err)
}

func TestMinMaxAndRobust(t *testing.T) {
	mm := NewMinMax()
	out, err := mm.FitTransform(xTrain())
	require.NoError(t, err)
	assert.InDelta(t, 0, out.At(0, 0, 0), 1e-12)
	assert.InDelta(t, 1, out.At(3, 1, 0), 1e-12)

	rb := NewRobust()
	out, err = rb.FitTransform(xTrain())
	require.NoError(t, err)
	back, err := rb.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, back.EqualApprox(xTrain(), 1e-12))
}

func TestConstantColumnKeepsFiniteValues(t *testing.T) {
	s := NewMeanVariance()
	out, err := s.FitTransform(ndarray.MustNew([]int{3, 1}, []float64{2, 2, 2}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, out.Data())
}

func TestMinMaxSeqBySeqPairsRows(t *testing.T) {
	x := ndarray.MustNew([]int{2, 4}, []float64{1, 2, 3, 5, 10, 20, 20, 30})
	y := ndarray.MustNew([]int{2, 2}, []float64{3, 7, 25, 40})

	s := NewMinMaxSeqBySeq()
	xs, err := s.FitTransform(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 1, 0, 0.5, 0.5, 1}, xs.Data())

	ys, err := s.Transform(y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1.5, 0.75, 1.5}, ys.Data(), 1e-12)

	back, err := s.InverseTransform(xs)
	require.NoError(t, err)
	assert.True(t, back.EqualApprox(x, 1e-12))

	_, err = s.FitTransform(ndarray.Zeros(0, 4))
	assert.Error(t, err)
}

func TestMinMaxSeqBySeqUnpairedRowsUseOwnRange(t *testing.T) {
	s := NewMinMaxSeqBySeq()
	_, err := s.FitTransform(ndarray.MustNew([]int{2, 2}, []float64{1, 3, 10, 20}))
	require.NoError(t, err)

	out, err := s.Transform(ndarray.MustNew([]int{3, 2}, []float64{4, 8, 5, 5, -2, 2}))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())
	assert.Equal(t, []float64{0, 1, 0, 0, 0, 1}, out.Data())

	_, err = s.InverseTransform(out)
	assert.True(t, errors.Is(err, errors.Precondition))
}

package scaler

import (
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"gonum.org/v1/gonum/floats"
)

// MinMaxSeqBySeq maps every sample (row of the flattened array) to [0, 1] using that
// sample's own minimum and range. Transform reuses the fitted per-sample statistics for
// another array with the same number of samples, whatever its width, so a paired array
// is scaled relative to the sequence it was fitted on. An array with a different number
// of samples has no paired statistics; each of its rows is scaled by its own min and range.
type MinMaxSeqBySeq struct {
	mins   []float64
	ranges []float64
}

// NewMinMaxSeqBySeq returns an unfitted sequence-by-sequence min-max scaler.
func NewMinMaxSeqBySeq() *MinMaxSeqBySeq { return &MinMaxSeqBySeq{} }

func (s *MinMaxSeqBySeq) Name() Name { return MinMaxSeqBySeq2D }

func rowsOf(x *ndarray.Array) (int, int, error) {
	if x.Rank() < 2 {
		return 0, 0, errors.Preconditionf("%s: expected at least 2 dimensions, got shape %v", MinMaxSeqBySeq2D, x.Shape())
	}
	n := x.Len()
	if n == 0 {
		return 0, 0, nil
	}
	return n, x.Size() / n, nil
}

func (s *MinMaxSeqBySeq) FitTransform(x *ndarray.Array) (*ndarray.Array, error) {
	n, width, err := rowsOf(x)
	if err != nil {
		return nil, err
	}
	if n == 0 || width == 0 {
		return nil, errors.Preconditionf("%s: cannot fit on empty array of shape %v", MinMaxSeqBySeq2D, x.Shape())
	}
	s.mins, s.ranges = rowStats(x.Data(), n, width)
	return s.apply(x, false)
}

func rowStats(data []float64, n, width int) (mins, ranges []float64) {
	mins = make([]float64, n)
	ranges = make([]float64, n)
	for r := 0; r < n; r++ {
		row := data[r*width : (r+1)*width]
		lo, hi := floats.Min(row), floats.Max(row)
		mins[r] = lo
		ranges[r] = hi - lo
		if ranges[r] == 0 {
			ranges[r] = 1
		}
	}
	return mins, ranges
}

func (s *MinMaxSeqBySeq) Transform(x *ndarray.Array) (*ndarray.Array, error) {
	return s.apply(x, false)
}

func (s *MinMaxSeqBySeq) InverseTransform(x *ndarray.Array) (*ndarray.Array, error) {
	return s.apply(x, true)
}

func (s *MinMaxSeqBySeq) apply(x *ndarray.Array, inverse bool) (*ndarray.Array, error) {
	if s.mins == nil {
		return nil, errNotFitted
	}
	n, width, err := rowsOf(x)
	if err != nil {
		return nil, err
	}
	data := x.Data()
	mins, ranges := s.mins, s.ranges
	if n != len(mins) {
		if inverse {
			return nil, errors.Preconditionf("%s: fitted on %d sequences, cannot invert %d", MinMaxSeqBySeq2D, len(mins), n)
		}
		if width == 0 {
			return ndarray.New(x.Shape(), data)
		}
		mins, ranges = rowStats(data, n, width)
	}
	for r := 0; r < n; r++ {
		for i := r * width; i < (r+1)*width; i++ {
			if inverse {
				data[i] = data[i]*ranges[r] + mins[r]
			} else {
				data[i] = (data[i] - mins[r]) / ranges[r]
			}
		}
	}
	return ndarray.New(x.Shape(), data)
}

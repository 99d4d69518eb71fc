package scaler

import (
	"sort"

	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// groupFunc returns how many trailing positions form one statistics group for shape,
// i.e. element i belongs to group i % width.
type groupFunc func(shape []int) (int, error)

// fitFunc computes (center, scale) for one group's values.
type fitFunc func(values []float64) (center, scale float64)

// affine is a column-wise (x - center) / scale scaler. The grouping decides whether
// columns are last-axis features or whole (time-step, feature) cells.
type affine struct {
	name     Name
	group    groupFunc
	fit      fitFunc
	trailing []int
	center   []float64
	scale    []float64
}

func lastAxis(shape []int) (int, error) {
	if len(shape) < 2 {
		return 0, errors.Preconditionf("expected at least 2 dimensions, got shape %v", shape)
	}
	return shape[len(shape)-1], nil
}

func cells3D(shape []int) (int, error) {
	if len(shape) != 3 {
		return 0, errors.Preconditionf("expected 3 dimensions, got shape %v", shape)
	}
	return shape[1] * shape[2], nil
}

func (s *affine) Name() Name { return s.name }

func (s *affine) FitTransform(x *ndarray.Array) (*ndarray.Array, error) {
	width, err := s.group(x.Shape())
	if err != nil {
		return nil, err
	}
	data := x.Data()
	if len(data) == 0 || width == 0 {
		return nil, errors.Preconditionf("%s: cannot fit on empty array of shape %v", s.name, x.Shape())
	}
	groups := make([][]float64, width)
	for i, v := range data {
		groups[i%width] = append(groups[i%width], v)
	}
	s.center = make([]float64, width)
	s.scale = make([]float64, width)
	for j, g := range groups {
		c, sc := s.fit(g)
		if sc == 0 {
			sc = 1
		}
		s.center[j], s.scale[j] = c, sc
	}
	s.trailing = x.Shape()[1:]
	return s.apply(x, false)
}

func (s *affine) Transform(x *ndarray.Array) (*ndarray.Array, error) {
	return s.apply(x, false)
}

func (s *affine) InverseTransform(x *ndarray.Array) (*ndarray.Array, error) {
	return s.apply(x, true)
}

func (s *affine) apply(x *ndarray.Array, inverse bool) (*ndarray.Array, error) {
	if s.center == nil {
		return nil, errNotFitted
	}
	width, err := s.group(x.Shape())
	if err != nil {
		return nil, err
	}
	if width != len(s.center) {
		return nil, errors.Preconditionf("%s: fitted on %d columns, got shape %v", s.name, len(s.center), x.Shape())
	}
	if s.name == TimeStep3D && !sameInts(x.Shape()[1:], s.trailing) {
		return nil, errors.Preconditionf("%s: fitted on trailing shape %v, got %v", s.name, s.trailing, x.Shape()[1:])
	}
	data := x.Data()
	for i, v := range data {
		j := i % width
		if inverse {
			data[i] = v*s.scale[j] + s.center[j]
		} else {
			data[i] = (v - s.center[j]) / s.scale[j]
		}
	}
	return ndarray.New(x.Shape(), data)
}

func sameInts(a, b []int) bool {
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

func meanStd(values []float64) (float64, float64) {
	return stat.PopMeanStdDev(values, nil)
}

func minRange(values []float64) (float64, float64) {
	lo, hi := floats.Min(values), floats.Max(values)
	return lo, hi - lo
}

func medianIQR(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	med := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return med, q3 - q1
}

// NewMeanVariance standardises each last-axis feature over samples and time-steps.
func NewMeanVariance() Scaler {
	return &affine{name: MeanVariance3D, group: lastAxis, fit: meanStd}
}

// NewTimeStep standardises each (time-step, feature) cell over the sample axis.
func NewTimeStep() Scaler {
	return &affine{name: TimeStep3D, group: cells3D, fit: meanStd}
}

// NewMinMax maps each last-axis feature to [0, 1].
func NewMinMax() Scaler {
	return &affine{name: MinMax, group: lastAxis, fit: minRange}
}

// NewRobust centres each last-axis feature on its median and scales by the IQR.
func NewRobust() Scaler {
	return &affine{name: Robust, group: lastAxis, fit: medianIQR}
}

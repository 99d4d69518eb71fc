// Package scaler provides the fit/transform normalisers bound to feature sets.
//
// A Scaler carries fit state and is not safe for concurrent use; every feature set owns
// its own instance.
package scaler

import (
	"sort"

	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
)

// Name selects a scaler implementation from configuration.
type Name string

const (
	MeanVariance3D   Name = "MEAN_VARIANCE_SCALER_3D"
	TimeStep3D       Name = "TIME_STEP_SCALER_3D"
	MinMaxSeqBySeq2D Name = "MIN_MAX_SEQ_BY_SEQ_2D"
	MinMax           Name = "MIN_MAX_SCALER"
	Robust           Name = "ROBUST_SCALER"
)

// Scaler is the fit/transform capability a feature set is bound to.
type Scaler interface {
	Name() Name
	// FitTransform fits on x, replacing any previous fit, and returns the scaled copy.
	FitTransform(x *ndarray.Array) (*ndarray.Array, error)
	// Transform scales x with the current fit.
	Transform(x *ndarray.Array) (*ndarray.Array, error)
	// InverseTransform undoes Transform with the current fit.
	InverseTransform(x *ndarray.Array) (*ndarray.Array, error)
}

// Constructor builds an unfitted scaler.
type Constructor func() Scaler

var registry = map[Name]Constructor{
	MeanVariance3D:   func() Scaler { return NewMeanVariance() },
	TimeStep3D:       func() Scaler { return NewTimeStep() },
	MinMaxSeqBySeq2D: func() Scaler { return NewMinMaxSeqBySeq() },
	MinMax:           func() Scaler { return NewMinMax() },
	Robust:           func() Scaler { return NewRobust() },
}

// New returns a fresh scaler for name.
func New(name Name) (Scaler, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Configurationf("unknown scaler_name %q", string(name)).
			WithField("invalid", "scaler_name", string(name))
	}
	return ctor(), nil
}

// Names lists the registered scaler names in sorted order.
func Names() []Name {
	out := make([]Name, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var errNotFitted = errors.Precondition.Explain("scaler is not fitted")

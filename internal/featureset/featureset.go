// Package featureset defines feature sets: named groups of feature columns bound to
// their own scaler and fit policy, and the factory that builds them from configuration.
package featureset

import (
	"github.com/Aidin1998/bundleprep/internal/scaling/scaler"
	"github.com/Aidin1998/bundleprep/pkg/errors"
)

// Type selects which arrays a feature set scales.
type Type string

const (
	TypeX  Type = "X"
	TypeY  Type = "y"
	TypeXY Type = "Xy"
)

// ParseType validates a feature_set_type value.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeX, TypeY, TypeXY:
		return t, nil
	}
	return "", errors.Configurationf("invalid feature_set_type %q, expected X, y or Xy", s).
		WithField("invalid", "feature_set_type", s)
}

// FeatureSet is immutable after construction except for its scaler's fit state.
type FeatureSet struct {
	featureSetType       Type
	featureList          []string
	secondaryFeatureList []string
	doFitTest            bool
	scaler               scaler.Scaler
}

// New builds a feature set. secondary is required and non-empty only for TypeXY.
func New(t Type, features, secondary []string, doFitTest bool, s scaler.Scaler) (*FeatureSet, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, errors.Configurationf("feature_list must not be empty").
			WithField("invalid", "feature_list", "empty")
	}
	if t == TypeXY && len(secondary) == 0 {
		return nil, errors.Configurationf("secondary_feature_list is required for Xy feature sets").
			WithField("invalid", "secondary_feature_list", "empty")
	}
	if s == nil {
		return nil, errors.Configurationf("feature set needs a scaler").
			WithField("missing", "scaler_config", "required")
	}
	return &FeatureSet{
		featureSetType:       t,
		featureList:          append([]string(nil), features...),
		secondaryFeatureList: append([]string(nil), secondary...),
		doFitTest:            doFitTest,
		scaler:               s,
	}, nil
}

func (fs *FeatureSet) Type() Type { return fs.featureSetType }

// FeatureList returns a copy of the primary feature names, in order.
func (fs *FeatureSet) FeatureList() []string { return append([]string(nil), fs.featureList...) }

// SecondaryFeatureList returns a copy of the y-side feature names (Xy only).
func (fs *FeatureSet) SecondaryFeatureList() []string {
	return append([]string(nil), fs.secondaryFeatureList...)
}

// DoFitTest reports whether the test partition is fit independently instead of being
// transformed with the train fit.
func (fs *FeatureSet) DoFitTest() bool { return fs.doFitTest }

func (fs *FeatureSet) Scaler() scaler.Scaler { return fs.scaler }

// Description is the serialisable view of a feature set.
type Description struct {
	FeatureSetType       Type        `json:"feature_set_type" yaml:"feature_set_type"`
	FeatureList          []string    `json:"feature_list" yaml:"feature_list"`
	SecondaryFeatureList []string    `json:"secondary_feature_list,omitempty" yaml:"secondary_feature_list,omitempty"`
	DoFitTest            bool        `json:"do_fit_test" yaml:"do_fit_test"`
	ScalerName           scaler.Name `json:"scaler_name" yaml:"scaler_name"`
}

func (fs *FeatureSet) Describe() Description {
	return Description{
		FeatureSetType:       fs.featureSetType,
		FeatureList:          fs.FeatureList(),
		SecondaryFeatureList: fs.SecondaryFeatureList(),
		DoFitTest:            fs.doFitTest,
		ScalerName:           fs.scaler.Name(),
	}
}

// Partition groups feature sets by type, preserving attachment order within a group.
func Partition(sets []*FeatureSet) (x, y, xy []*FeatureSet) {
	for _, fs := range sets {
		switch fs.featureSetType {
		case TypeX:
			x = append(x, fs)
		case TypeY:
			y = append(y, fs)
		case TypeXY:
			xy = append(xy, fs)
		}
	}
	return x, y, xy
}

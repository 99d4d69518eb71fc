// Package scaling applies feature-set scalers to a bundle's train and test arrays.
//
// Three modes exist. X and y scaling write into zero-filled outputs, so positions no
// feature set selects stay exactly zero. Xy scaling writes into copies of the inputs,
// so unselected positions keep their original values.
package scaling

import (
	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"github.com/Aidin1998/bundleprep/pkg/metrics"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"go.uber.org/zap"
)

// Required lists the dataset keys Apply reads.
var Required = []bundle.Key{
	bundle.XFeatureDict, bundle.YFeatureDict,
	bundle.XTrain, bundle.XTest, bundle.YTrain, bundle.YTest,
}

// Engine scales bundles by their attached feature sets.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(l *zap.Logger) *Engine {
	return &Engine{logger: logger.OrNop(l).Named("scaling")}
}

// Verify checks everything Apply needs without touching the bundle.
func (e *Engine) Verify(b *bundle.DataBundle) error {
	if err := b.Require(Required...); err != nil {
		return err
	}
	if !b.HasFeatureSets() {
		return errors.Precondition.
			Explain("FeatureSets not found in %s", bundle.EntityName).
			WithField("missing", "feature_sets", "required")
	}
	return nil
}

// Apply scales the train/test arrays and stores the *_scaled slots. Nothing is written
// unless every feature set succeeds.
func (e *Engine) Apply(b *bundle.DataBundle) error {
	out, err := e.Compute(b)
	if err != nil {
		return err
	}
	return b.SetDataset(out)
}

// Compute returns the *_scaled slots for b without writing them. X and y groups run
// first; an Xy group then overwrites the slots it produces.
func (e *Engine) Compute(b *bundle.DataBundle) (bundle.Dataset, error) {
	if err := e.Verify(b); err != nil {
		return nil, err
	}
	xDict, err := b.FeatureDict(bundle.XFeatureDict)
	if err != nil {
		return nil, err
	}
	yDict, err := b.FeatureDict(bundle.YFeatureDict)
	if err != nil {
		return nil, err
	}
	arrays := make(map[bundle.Key]*ndarray.Array, 4)
	for _, k := range []bundle.Key{bundle.XTrain, bundle.XTest, bundle.YTrain, bundle.YTest} {
		if arrays[k], err = b.Array(k); err != nil {
			return nil, err
		}
	}

	xSets, ySets, xySets := featureset.Partition(b.FeatureSets())
	out := bundle.Dataset{}

	if len(xSets) > 0 {
		train, test, err := ScaleX(xSets, arrays[bundle.XTrain], arrays[bundle.XTest], xDict)
		if err != nil {
			return nil, err
		}
		out[bundle.XTrainScaled], out[bundle.XTestScaled] = train, test
		e.observe("X", xSets)
	}
	if len(ySets) > 0 {
		train, test, err := ScaleY(ySets, arrays[bundle.YTrain], arrays[bundle.YTest], yDict)
		if err != nil {
			return nil, err
		}
		out[bundle.YTrainScaled], out[bundle.YTestScaled] = train, test
		e.observe("y", ySets)
	}
	if len(xySets) > 0 {
		xTrain, yTrain, err := ScaleXY(xySets, arrays[bundle.XTrain], arrays[bundle.YTrain], xDict, yDict)
		if err != nil {
			return nil, err
		}
		xTest, yTest, err := ScaleXY(xySets, arrays[bundle.XTest], arrays[bundle.YTest], xDict, yDict)
		if err != nil {
			return nil, err
		}
		out[bundle.XTrainScaled], out[bundle.YTrainScaled] = xTrain, yTrain
		out[bundle.XTestScaled], out[bundle.YTestScaled] = xTest, yTest
		e.observe("Xy", xySets)
	}
	return out, nil
}

func (e *Engine) observe(mode string, sets []*featureset.FeatureSet) {
	metrics.FeatureSetsScaled.WithLabelValues(mode).Add(float64(len(sets)))
	for _, fs := range sets {
		e.logger.Debug("Scaled feature set",
			zap.String("mode", mode),
			zap.Strings("features", fs.FeatureList()),
			zap.String("scaler", string(fs.Scaler().Name())),
			zap.Bool("do_fit_test", fs.DoFitTest()))
	}
}

func resolve(dict bundle.FeatureDict, names []string, side bundle.Key) ([]int, error) {
	idx, missing := dict.Indices(names)
	if len(missing) > 0 {
		return nil, errors.Preconditionf("feature %q not found in %s", missing[0], side).
			WithField("invalid", missing[0], "unknown feature")
	}
	return idx, nil
}

func fitOrTransform(fs *featureset.FeatureSet, x *ndarray.Array, fit bool) (*ndarray.Array, error) {
	if fit {
		return fs.Scaler().FitTransform(x)
	}
	return fs.Scaler().Transform(x)
}

// ScaleX scales the last-axis columns of each feature set. The scaler is fit on train and
// applied to test, or refit on test when the feature set asks for it.
func ScaleX(sets []*featureset.FeatureSet, train, test *ndarray.Array, dict bundle.FeatureDict) (*ndarray.Array, *ndarray.Array, error) {
	if train.Rank() < 2 || test.Rank() != train.Rank() {
		return nil, nil, errors.Preconditionf("X scaling needs matching ranks of at least 2, got %v and %v", train.Shape(), test.Shape())
	}
	axis := train.Rank() - 1
	trainOut := ndarray.Zeros(train.Shape()...)
	testOut := ndarray.Zeros(test.Shape()...)
	for _, fs := range sets {
		idx, err := resolve(dict, fs.FeatureList(), bundle.XFeatureDict)
		if err != nil {
			return nil, nil, err
		}
		if err := scaleColumns(fs, train, trainOut, axis, idx, true); err != nil {
			return nil, nil, err
		}
		if err := scaleColumns(fs, test, testOut, axis, idx, fs.DoFitTest()); err != nil {
			return nil, nil, err
		}
	}
	return trainOut, testOut, nil
}

func scaleColumns(fs *featureset.FeatureSet, src, dst *ndarray.Array, axis int, idx []int, fit bool) error {
	slice, err := src.Take(axis, idx)
	if err != nil {
		return errors.Precondition.Explain("select features").Wrap(err)
	}
	scaled, err := fitOrTransform(fs, slice, fit)
	if err != nil {
		return err
	}
	if err := dst.Put(axis, idx, scaled); err != nil {
		return errors.Precondition.Explain("write scaled features").Wrap(err)
	}
	return nil
}

// ScaleY scales each y array as a whole. Feature names are checked against dict but do
// not select columns; with several y feature sets the last one wins.
func ScaleY(sets []*featureset.FeatureSet, train, test *ndarray.Array, dict bundle.FeatureDict) (*ndarray.Array, *ndarray.Array, error) {
	trainOut := ndarray.Zeros(train.Shape()...)
	testOut := ndarray.Zeros(test.Shape()...)
	for _, fs := range sets {
		if _, err := resolve(dict, fs.FeatureList(), bundle.YFeatureDict); err != nil {
			return nil, nil, err
		}
		var err error
		if trainOut, err = fs.Scaler().FitTransform(train); err != nil {
			return nil, nil, err
		}
		if testOut, err = fitOrTransform(fs, test, fs.DoFitTest()); err != nil {
			return nil, nil, err
		}
	}
	return trainOut, testOut, nil
}

// ScaleXY jointly scales paired X and y slices with each feature set's scaler. X is
// (samples, time-steps, features) and features are taken from axis 2; y is
// (samples, features, time-steps) and features are taken from axis 1. Both slices are
// flattened to (samples, -1); the scaler is fit on the X slice and the y slice is
// transformed with that fit, or refit when the feature set asks for it.
//
// Both sides resolve the feature list independently; a name found in only one dictionary
// selects on that side only. The caller runs train and test through separate calls, so
// each partition's X side is fit on itself.
func ScaleXY(sets []*featureset.FeatureSet, x, y *ndarray.Array, xDict, yDict bundle.FeatureDict) (*ndarray.Array, *ndarray.Array, error) {
	if x.Rank() != 3 || y.Rank() != 3 {
		return nil, nil, errors.Preconditionf("Xy scaling needs 3D arrays, got %v and %v", x.Shape(), y.Shape())
	}
	if x.Len() != y.Len() {
		return nil, nil, errors.Preconditionf("Xy scaling needs paired samples, got %d and %d", x.Len(), y.Len())
	}
	xOut, yOut := x.Clone(), y.Clone()
	for _, fs := range sets {
		xIdx, _ := xDict.Indices(fs.FeatureList())
		yIdx, _ := yDict.Indices(fs.FeatureList())
		if len(xIdx) == 0 {
			return nil, nil, errors.Preconditionf("feature set %v selects no feature of %s", fs.FeatureList(), bundle.XFeatureDict).
				WithField("invalid", "feature_list", "no X feature")
		}

		xSlice, err := x.Take(2, xIdx)
		if err != nil {
			return nil, nil, errors.Precondition.Explain("select X features").Wrap(err)
		}
		xScaled, err := fitFlat(fs, xSlice, true)
		if err != nil {
			return nil, nil, err
		}
		if err := xOut.Put(2, xIdx, xScaled); err != nil {
			return nil, nil, errors.Precondition.Explain("write scaled X features").Wrap(err)
		}

		if len(yIdx) == 0 {
			continue
		}
		ySlice, err := y.Take(1, yIdx)
		if err != nil {
			return nil, nil, errors.Precondition.Explain("select y features").Wrap(err)
		}
		yScaled, err := fitFlat(fs, ySlice, fs.DoFitTest())
		if err != nil {
			return nil, nil, err
		}
		if err := yOut.Put(1, yIdx, yScaled); err != nil {
			return nil, nil, errors.Precondition.Explain("write scaled y features").Wrap(err)
		}
	}
	return xOut, yOut, nil
}

// fitFlat scales a slice through its (samples, -1) view and restores the slice shape.
func fitFlat(fs *featureset.FeatureSet, slice *ndarray.Array, fit bool) (*ndarray.Array, error) {
	flat, err := slice.Flatten2D()
	if err != nil {
		return nil, errors.Precondition.Explain("flatten feature slice").Wrap(err)
	}
	scaled, err := fitOrTransform(fs, flat, fit)
	if err != nil {
		return nil, err
	}
	return scaled.Reshape(slice.Shape()...)
}

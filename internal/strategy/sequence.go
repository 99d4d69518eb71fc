package strategy

import (
	"context"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/ndarray"
	"go.uber.org/zap"
)

// CreateSequenceWindows turns a (rows, columns) table into overlapping windows:
// X[i] = table[i:i+L, X_features] and y[i] = table[i+L-1, y_features] shaped (n, 1, |y|).
// row_ids[i] is the id of window i's last row.
type CreateSequenceWindows struct {
	base
}

type sequenceParams struct {
	Table          any            `mapstructure:"table"`
	FeatureDict    map[string]int `mapstructure:"feature_dict"`
	SequenceLength int            `mapstructure:"sequence_length"`
	XFeatures      []string       `mapstructure:"X_features"`
	YFeatures      []string       `mapstructure:"y_features"`
	RowIDs         []int64        `mapstructure:"row_ids"`
}

func NewCreateSequenceWindows(req *Request, deps Deps) Strategy {
	return &CreateSequenceWindows{newBase("CreateSequenceWindows", req, deps)}
}

type windows struct {
	table   *ndarray.Array
	params  sequenceParams
	xCols   []int
	yCols   []int
	rowIDs  []int64
	samples int
}

func (s *CreateSequenceWindows) prepare() (*windows, error) {
	if err := s.requireParams("table", "feature_dict", "sequence_length", "X_features", "y_features"); err != nil {
		return nil, err
	}
	var p sequenceParams
	if err := s.decodeParams(&p); err != nil {
		return nil, err
	}
	table, err := ndarray.FromNested(p.Table)
	if err != nil {
		return nil, errors.Configurationf("table is not numeric").WithField("invalid", "table", err.Error()).Wrap(err)
	}
	if table.Rank() != 2 {
		return nil, errors.Configurationf("table must be 2D, got shape %v", table.Shape()).
			WithField("invalid", "table", "rank")
	}
	rows := table.Len()
	if p.SequenceLength < 1 || p.SequenceLength > rows {
		return nil, errors.Configurationf("sequence_length %d outside [1, %d]", p.SequenceLength, rows).
			WithField("invalid", "sequence_length", "out of range")
	}
	w := &windows{table: table, params: p, samples: rows - p.SequenceLength + 1}
	for _, side := range []struct {
		field string
		names []string
		cols  *[]int
	}{
		{"X_features", p.XFeatures, &w.xCols},
		{"y_features", p.YFeatures, &w.yCols},
	} {
		if len(side.names) == 0 {
			return nil, errors.Configurationf("%s must not be empty", side.field).WithField("invalid", side.field, "empty")
		}
		cols, missing := bundle.FeatureDict(p.FeatureDict).Indices(side.names)
		if len(missing) > 0 {
			return nil, errors.Configurationf("feature %q not in feature_dict", missing[0]).
				WithField("invalid", side.field, missing[0])
		}
		for _, c := range cols {
			if c < 0 || c >= table.Dim(1) {
				return nil, errors.Configurationf("feature_dict index %d outside table width %d", c, table.Dim(1)).
					WithField("invalid", "feature_dict", "index")
			}
		}
		*side.cols = cols
	}
	w.rowIDs = p.RowIDs
	if w.rowIDs == nil {
		w.rowIDs = make([]int64, rows)
		for i := range w.rowIDs {
			w.rowIDs[i] = int64(i)
		}
	}
	if len(w.rowIDs) != rows {
		return nil, errors.Preconditionf("row_ids has %d entries for %d table rows", len(w.rowIDs), rows).
			WithField("invalid", "row_ids", "length mismatch")
	}
	return w, nil
}

func (s *CreateSequenceWindows) VerifyExecutable(bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	_, err := s.prepare()
	return err
}

func (s *CreateSequenceWindows) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	w, err := s.prepare()
	if err != nil {
		return err
	}
	ds := w.build()
	s.logger.Debug("Created sequence windows",
		zap.Int("samples", w.samples),
		zap.Int("sequence_length", w.params.SequenceLength))
	return applyEach(bundles, func(b *bundle.DataBundle) error {
		return b.SetDataset(ds)
	})
}

func (w *windows) build() bundle.Dataset {
	length := w.params.SequenceLength
	x := ndarray.Zeros(w.samples, length, len(w.xCols))
	y := ndarray.Zeros(w.samples, 1, len(w.yCols))
	ids := make([]int64, w.samples)
	for i := 0; i < w.samples; i++ {
		for step := 0; step < length; step++ {
			for j, c := range w.xCols {
				x.Set(w.table.At(i+step, c), i, step, j)
			}
		}
		last := i + length - 1
		for j, c := range w.yCols {
			y.Set(w.table.At(last, c), i, 0, j)
		}
		ids[i] = w.rowIDs[last]
	}
	return bundle.Dataset{
		bundle.X:            x,
		bundle.Y:            y,
		bundle.RowIDs:       ids,
		bundle.XFeatureDict: positions(w.params.XFeatures),
		bundle.YFeatureDict: positions(w.params.YFeatures),
	}
}

func positions(names []string) bundle.FeatureDict {
	d := make(bundle.FeatureDict, len(names))
	for i, n := range names {
		d[n] = i
	}
	return d
}

func (s *CreateSequenceWindows) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{
		"table":           [][]float64{},
		"feature_dict":    map[string]int{},
		"sequence_length": 1,
		"X_features":      []string{},
		"y_features":      []string{},
		"row_ids":         nil,
	}}
}

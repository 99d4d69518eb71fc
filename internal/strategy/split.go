package strategy

import (
	"context"
	"time"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// SplitBundleDate partitions X, y and row_ids at the position of split_date in
// date_list. Samples before the boundary go to train; the boundary sample and everything
// after it go to test.
type SplitBundleDate struct {
	base
}

func NewSplitBundleDate(req *Request, deps Deps) Strategy {
	return &SplitBundleDate{newBase("SplitBundleDate", req, deps)}
}

// normalizeDate parses v and drops its zone, keeping the wall-clock reading.
func normalizeDate(v any) (time.Time, error) {
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

// SplitIndex returns the boundary index for split within dates: the index of its first
// exact match, otherwise of the first date with the smallest absolute distance.
func SplitIndex(split time.Time, dates []time.Time) int {
	if len(dates) == 0 {
		return -1
	}
	best := 0
	bestDiff := absDuration(dates[0].Sub(split))
	for i, d := range dates {
		if d.Equal(split) {
			return i
		}
		if diff := absDuration(d.Sub(split)); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (s *SplitBundleDate) dates() (time.Time, []time.Time, error) {
	if err := s.requireParams("split_date", "date_list"); err != nil {
		return time.Time{}, nil, err
	}
	split, err := normalizeDate(s.req.ParamConfig["split_date"])
	if err != nil {
		return time.Time{}, nil, errors.Configurationf("invalid split_date").
			WithField("invalid", "split_date", err.Error())
	}
	raw, ok := toList(s.req.ParamConfig["date_list"])
	if !ok || len(raw) == 0 {
		return time.Time{}, nil, errors.Configurationf("date_list must be a non-empty list").
			WithField("invalid", "date_list", "not a list")
	}
	dates := make([]time.Time, len(raw))
	for i, v := range raw {
		if dates[i], err = normalizeDate(v); err != nil {
			return time.Time{}, nil, errors.Configurationf("invalid date_list[%d]", i).
				WithField("invalid", "date_list", err.Error())
		}
	}
	return split, dates, nil
}

func (s *SplitBundleDate) check(b *bundle.DataBundle, n int) error {
	if err := b.Require(bundle.X, bundle.Y, bundle.RowIDs); err != nil {
		return err
	}
	x, err := b.Array(bundle.X)
	if err != nil {
		return err
	}
	if x.Len() != n {
		return errors.Preconditionf("Dates and X must be the same length: %d dates, %d samples", n, x.Len()).
			WithField("invalid", "date_list", "length mismatch")
	}
	y, err := b.Array(bundle.Y)
	if err != nil {
		return err
	}
	ids, err := b.RowIDs(bundle.RowIDs)
	if err != nil {
		return err
	}
	if y.Len() != n || len(ids) != n {
		return errors.Preconditionf("X, y and row_ids are not aligned: %d, %d and %d samples", x.Len(), y.Len(), len(ids)).
			WithField("invalid", "row_ids", "length mismatch")
	}
	return nil
}

func (s *SplitBundleDate) VerifyExecutable(bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	_, dates, err := s.dates()
	if err != nil {
		return err
	}
	return verifyEach(s.name, bundles, func(b *bundle.DataBundle) error {
		return s.check(b, len(dates))
	})
}

func (s *SplitBundleDate) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	split, dates, err := s.dates()
	if err != nil {
		return err
	}
	boundary := SplitIndex(split, dates)
	return applyEach(bundles, func(b *bundle.DataBundle) error {
		ds, err := splitAt(b, boundary)
		if err != nil {
			return err
		}
		s.logger.Debug("Split data bundle",
			zap.Stringer("bundle_id", b.ID()),
			zap.Time("split_date", dates[boundary]),
			zap.Int("boundary", boundary))
		return b.SetDataset(ds)
	})
}

func splitAt(b *bundle.DataBundle, boundary int) (bundle.Dataset, error) {
	ds := bundle.Dataset{}
	for _, p := range []struct{ src, train, test bundle.Key }{
		{bundle.X, bundle.XTrain, bundle.XTest},
		{bundle.Y, bundle.YTrain, bundle.YTest},
	} {
		arr, err := b.Array(p.src)
		if err != nil {
			return nil, err
		}
		train, err := arr.Rows(0, boundary)
		if err != nil {
			return nil, errors.Precondition.Explain("split %s", p.src).Wrap(err)
		}
		test, err := arr.Rows(boundary, arr.Len())
		if err != nil {
			return nil, errors.Precondition.Explain("split %s", p.src).Wrap(err)
		}
		ds[p.train], ds[p.test] = train, test
	}
	ids, err := b.RowIDs(bundle.RowIDs)
	if err != nil {
		return nil, err
	}
	ds[bundle.TrainRowIDs] = ids[:boundary]
	ds[bundle.TestRowIDs] = ids[boundary:]
	return ds, nil
}

func (s *SplitBundleDate) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{
		"split_date": nil,
		"date_list":  nil,
	}}
}

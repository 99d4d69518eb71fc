package strategy

import (
	"context"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/scaling"
)

// ScaleByFeatureSets runs the scaling engine over each bundle's attached feature sets.
type ScaleByFeatureSets struct {
	base
	engine *scaling.Engine
}

func NewScaleByFeatureSets(req *Request, deps Deps) Strategy {
	engine := deps.Engine
	if engine == nil {
		engine = scaling.NewEngine(deps.Logger)
	}
	return &ScaleByFeatureSets{
		base:   newBase("ScaleByFeatureSets", req, deps),
		engine: engine,
	}
}

func (s *ScaleByFeatureSets) VerifyExecutable(bundles []*bundle.DataBundle) error {
	return verifyEach(s.name, bundles, s.engine.Verify)
}

// Apply scales every bundle before writing any of them, so one failing bundle leaves
// the others untouched.
func (s *ScaleByFeatureSets) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	scaled := make([]bundle.Dataset, len(bundles))
	for i, b := range bundles {
		ds, err := s.engine.Compute(b)
		if err != nil {
			return err
		}
		scaled[i] = ds
	}
	for i, b := range bundles {
		if err := b.SetDataset(scaled[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScaleByFeatureSets) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{}}
}

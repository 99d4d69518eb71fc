package strategy

import (
	"context"
	"fmt"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/internal/scaling/scaler"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// CreateFeatureSets builds the configured feature sets and attaches them to each bundle.
// Every bundle gets its own instances, so scalers are never shared between bundles.
type CreateFeatureSets struct {
	base
	factory *featureset.Factory
}

func NewCreateFeatureSets(req *Request, deps Deps) Strategy {
	factory := deps.Factory
	if factory == nil {
		factory = featureset.NewFactory(deps.Logger)
	}
	return &CreateFeatureSets{
		base:    newBase("CreateFeatureSets", req, deps),
		factory: factory,
	}
}

func (s *CreateFeatureSets) configs() ([]map[string]any, error) {
	if err := s.requireParams("feature_set_configs"); err != nil {
		return nil, err
	}
	list, ok := toList(s.req.ParamConfig["feature_set_configs"])
	if !ok {
		return nil, errors.Configurationf("feature_set_configs must be a list").
			WithField("invalid", "feature_set_configs", "not a list")
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, errors.Configurationf("feature_set_configs[%d] must be a mapping", i).
				WithField("invalid", "feature_set_configs", "not a mapping")
		}
		out = append(out, m)
	}
	return out, nil
}

// VerifyExecutable checks required fields of every config in order, then decodes and
// validates them, so Apply cannot fail halfway through the bundles.
func (s *CreateFeatureSets) VerifyExecutable(bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	configs, err := s.configs()
	if err != nil {
		return err
	}
	for _, raw := range configs {
		if err := featureset.CheckRequired(raw); err != nil {
			return err
		}
	}
	for i, raw := range configs {
		cfg, err := s.factory.Decode(raw)
		if err != nil {
			return fmt.Errorf("feature_set_configs[%d]: %w", i, err)
		}
		if _, err := scaler.New(scaler.Name(cfg.ScalerConfig.ScalerName)); err != nil {
			return fmt.Errorf("feature_set_configs[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *CreateFeatureSets) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	configs, err := s.configs()
	if err != nil {
		return err
	}
	created := make([][]*featureset.FeatureSet, len(bundles))
	for i := range bundles {
		if created[i], err = s.factory.CreateAll(configs); err != nil {
			return err
		}
	}
	for i, b := range bundles {
		b.AttachFeatureSets(created[i])
		s.logger.Debug("Attached feature sets", zap.Stringer("bundle_id", b.ID()), zap.Int("count", len(created[i])))
	}
	return nil
}

func (s *CreateFeatureSets) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{
		"feature_set_configs": []map[string]any{{
			"scaler_config":          map[string]any{"scaler_name": string(scaler.MeanVariance3D)},
			"feature_list":           []string{},
			"feature_set_type":       string(featureset.TypeX),
			"do_fit_test":            false,
			"secondary_feature_list": nil,
		}},
	}}
}

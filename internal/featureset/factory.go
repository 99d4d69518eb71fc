package featureset

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Aidin1998/bundleprep/internal/scaling/scaler"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
)

// RequiredFields are checked for presence, in this order, on every raw configuration.
var RequiredFields = []string{"feature_set_type", "feature_list", "scaler_config", "do_fit_test"}

// ScalerConfig selects the scaler bound to a feature set.
type ScalerConfig struct {
	ScalerName string `mapstructure:"scaler_name" validate:"required"`
}

// Config is one entry of feature_set_configs.
type Config struct {
	FeatureSetType       string       `mapstructure:"feature_set_type" validate:"required,oneof=X y Xy"`
	FeatureList          []string     `mapstructure:"feature_list" validate:"required,min=1,dive,required"`
	SecondaryFeatureList []string     `mapstructure:"secondary_feature_list" validate:"omitempty,dive,required"`
	ScalerConfig         ScalerConfig `mapstructure:"scaler_config"`
	DoFitTest            bool         `mapstructure:"do_fit_test"`
}

// Factory builds feature sets from configuration, binding a fresh scaler to each.
type Factory struct {
	validate  *validator.Validate
	newScaler func(scaler.Name) (scaler.Scaler, error)
	logger    *zap.Logger
}

// NewFactory creates a factory resolving scalers through the scaler registry.
func NewFactory(l *zap.Logger) *Factory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Factory{
		validate:  v,
		newScaler: scaler.New,
		logger:    logger.OrNop(l).Named("featureset-factory"),
	}
}

// CheckRequired reports the first required field missing from raw.
func CheckRequired(raw map[string]any) error {
	for _, key := range RequiredFields {
		if _, ok := raw[key]; !ok {
			return errors.MissingConfig(key, "feature_set_config")
		}
	}
	if t, _ := raw["feature_set_type"].(string); t == string(TypeXY) {
		if v, ok := raw["secondary_feature_list"]; !ok || v == nil {
			return errors.MissingConfig("secondary_feature_list", "feature_set_config")
		}
	}
	return nil
}

// Decode checks presence, decodes and validates one raw configuration.
func (f *Factory) Decode(raw map[string]any) (Config, error) {
	var cfg Config
	if err := CheckRequired(raw); err != nil {
		return cfg, err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &cfg,
		TagName: "mapstructure",
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, errors.Configurationf("malformed feature_set_config").Wrap(err)
	}
	if err := f.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate applies struct-tag rules plus the Xy secondary-list rule.
func (f *Factory) Validate(cfg Config) error {
	if err := f.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Configurationf("invalid %s: failed %q rule", fe.Field(), fe.Tag()).
				WithField(fe.Tag(), fe.Field(), fmt.Sprintf("%v", fe.Value()))
		}
		return errors.Configurationf("invalid feature_set_config").Wrap(err)
	}
	if Type(cfg.FeatureSetType) == TypeXY && len(cfg.SecondaryFeatureList) == 0 {
		return errors.Configurationf("secondary_feature_list is required for Xy feature sets").
			WithField("invalid", "secondary_feature_list", "empty")
	}
	return nil
}

// Create builds a feature set from a decoded configuration.
func (f *Factory) Create(cfg Config) (*FeatureSet, error) {
	if err := f.Validate(cfg); err != nil {
		return nil, err
	}
	s, err := f.newScaler(scaler.Name(cfg.ScalerConfig.ScalerName))
	if err != nil {
		return nil, err
	}
	fs, err := New(Type(cfg.FeatureSetType), cfg.FeatureList, cfg.SecondaryFeatureList, cfg.DoFitTest, s)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Feature set created",
		zap.String("type", cfg.FeatureSetType),
		zap.Strings("features", cfg.FeatureList),
		zap.String("scaler", cfg.ScalerConfig.ScalerName),
		zap.Bool("do_fit_test", cfg.DoFitTest))
	return fs, nil
}

// CreateAll decodes and builds every configuration, in order. Nothing is returned
// unless all of them succeed.
func (f *Factory) CreateAll(raws []map[string]any) ([]*FeatureSet, error) {
	configs := make([]Config, 0, len(raws))
	for i, raw := range raws {
		cfg, err := f.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("feature_set_configs[%d]: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	sets := make([]*FeatureSet, 0, len(configs))
	for i, cfg := range configs {
		fs, err := f.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("feature_set_configs[%d]: %w", i, err)
		}
		sets = append(sets, fs)
	}
	return sets, nil
}

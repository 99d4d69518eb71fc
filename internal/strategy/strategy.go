// Package strategy implements the pipeline steps that transform data bundles. Every
// strategy is bound to one Request, checks its preconditions in VerifyExecutable before
// touching any bundle, and reports a static RequestConfig template for discovery.
package strategy

import (
	"context"
	"reflect"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
)

// Strategy is one configurable pipeline step.
type Strategy interface {
	Name() string
	// VerifyExecutable fails with a descriptive error for the first missing config field or
	// dataset key. It never mutates bundles.
	VerifyExecutable(bundles []*bundle.DataBundle) error
	// Apply verifies and then transforms the bundles in place, or places its result in
	// the request's RetVal.
	Apply(ctx context.Context, bundles []*bundle.DataBundle) error
	RequestConfig() RequestConfig
}

// Request is a single strategy invocation.
type Request struct {
	StrategyName string         `json:"strategy_name" yaml:"strategy_name" mapstructure:"strategy_name"`
	ParamConfig  map[string]any `json:"param_config" yaml:"param_config" mapstructure:"param_config"`
	// RetVal receives results of strategies that do not mutate their inputs.
	RetVal map[string]any `json:"-" yaml:"-" mapstructure:"-"`
}

// NewRequest creates a request with an empty return slot.
func NewRequest(name string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{StrategyName: name, ParamConfig: params, RetVal: map[string]any{}}
}

// RequestConfig describes a strategy and the shape of the configuration it expects.
type RequestConfig struct {
	StrategyName string         `json:"strategy_name" yaml:"strategy_name"`
	StrategyPath *string        `json:"strategy_path" yaml:"strategy_path"`
	ParamConfig  map[string]any `json:"param_config" yaml:"param_config"`
}

// base carries what every built-in shares.
type base struct {
	name   string
	req    *Request
	logger *zap.Logger
}

func newBase(name string, req *Request, deps Deps) base {
	return base{
		name:   name,
		req:    req,
		logger: logger.OrNop(deps.Logger).Named("strategy").With(zap.String("strategy", name)),
	}
}

func (s *base) Name() string { return s.name }

// requireParams reports the first key missing from the param config.
func (s *base) requireParams(keys ...string) error {
	for _, k := range keys {
		if _, ok := s.req.ParamConfig[k]; !ok {
			return errors.MissingConfig(k, "config")
		}
	}
	return nil
}

// decodeParams decodes the param config into out, accepting loosely typed numbers.
func (s *base) decodeParams(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.req.ParamConfig); err != nil {
		return errors.Configurationf("malformed param_config for %s", s.name).Wrap(err)
	}
	return nil
}

func (s *base) setRetVal(key string, v any) {
	if s.req.RetVal == nil {
		s.req.RetVal = map[string]any{}
	}
	s.req.RetVal[key] = v
}

func requireBundles(name string, bundles []*bundle.DataBundle) error {
	if len(bundles) == 0 {
		return errors.Preconditionf("%s needs at least one data bundle", name).
			WithField("missing", bundle.EntityName, "required")
	}
	for i, b := range bundles {
		if b == nil {
			return errors.Preconditionf("%s got a nil data bundle at position %d", name, i)
		}
	}
	return nil
}

// verifyEach runs check on every bundle, stopping at the first failure.
func verifyEach(name string, bundles []*bundle.DataBundle, check func(*bundle.DataBundle) error) error {
	if err := requireBundles(name, bundles); err != nil {
		return err
	}
	for _, b := range bundles {
		if err := check(b); err != nil {
			return err
		}
	}
	return nil
}

// applyEach runs fn on every bundle in order.
func applyEach(bundles []*bundle.DataBundle, fn func(*bundle.DataBundle) error) error {
	for _, b := range bundles {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// toList accepts any slice or array value, as decoded from YAML, JSON or built in code.
func toList(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

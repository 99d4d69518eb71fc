package strategy

import (
	"sort"
	"sync"

	"github.com/Aidin1998/bundleprep/internal/featureset"
	"github.com/Aidin1998/bundleprep/internal/scaling"
	"github.com/Aidin1998/bundleprep/internal/store"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/Aidin1998/bundleprep/pkg/logger"
	"go.uber.org/zap"
)

// Deps are the collaborators built-in strategies may need.
type Deps struct {
	Logger  *zap.Logger
	Store   store.Store
	Engine  *scaling.Engine
	Factory *featureset.Factory
}

// Creator binds a new strategy instance to req.
type Creator func(req *Request, deps Deps) Strategy

// Registry resolves strategies by name.
type Registry struct {
	mu        sync.RWMutex
	creators  map[string]Creator
	templates map[string]RequestConfig
	deps      Deps
}

// NewRegistry creates a registry holding every built-in strategy.
func NewRegistry(deps Deps) *Registry {
	deps.Logger = logger.OrNop(deps.Logger)
	if deps.Engine == nil {
		deps.Engine = scaling.NewEngine(deps.Logger)
	}
	if deps.Factory == nil {
		deps.Factory = featureset.NewFactory(deps.Logger)
	}
	r := &Registry{
		creators:  make(map[string]Creator),
		templates: make(map[string]RequestConfig),
		deps:      deps,
	}
	r.registerBuiltinStrategies()
	return r
}

func (r *Registry) registerBuiltinStrategies() {
	builtins := []Creator{
		NewLoadDataBundleData,
		NewLoadDataBundleFromStore,
		NewCreateSequenceWindows,
		NewCreateFeatureSets,
		NewSplitBundleDate,
		NewScaleByFeatureSets,
		NewCombineDataBundles,
		NewCombineScaledDataBundles,
		NewSaveDataBundle,
	}
	for _, c := range builtins {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Register adds a strategy under the name its template reports.
func (r *Registry) Register(c Creator) error {
	tmpl := c(NewRequest("", nil), r.deps).RequestConfig()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.creators[tmpl.StrategyName]; exists {
		return errors.Configurationf("strategy '%s' already exists", tmpl.StrategyName)
	}
	r.creators[tmpl.StrategyName] = c
	r.templates[tmpl.StrategyName] = tmpl
	return nil
}

// Create binds the named strategy to req.
func (r *Registry) Create(req *Request) (Strategy, error) {
	if req == nil {
		return nil, errors.Configurationf("nil strategy request")
	}
	r.mu.RLock()
	creator, exists := r.creators[req.StrategyName]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.Configurationf("strategy '%s' not found", req.StrategyName).
			WithField("invalid", "strategy_name", req.StrategyName)
	}
	if req.ParamConfig == nil {
		req.ParamConfig = map[string]any{}
	}
	if req.RetVal == nil {
		req.RetVal = map[string]any{}
	}
	return creator(req, r.deps), nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.creators))
	for name := range r.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns every strategy's request template, sorted by name.
func (r *Registry) Available() []RequestConfig {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RequestConfig, 0, len(names))
	for _, name := range names {
		out = append(out, r.templates[name])
	}
	return out
}

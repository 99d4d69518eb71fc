package strategy

import (
	"context"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/store"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"go.uber.org/zap"
)

// LoadDataBundleData copies the param config into each bundle's dataset.
type LoadDataBundleData struct {
	base
}

func NewLoadDataBundleData(req *Request, deps Deps) Strategy {
	return &LoadDataBundleData{newBase("LoadDataBundleData", req, deps)}
}

func (s *LoadDataBundleData) VerifyExecutable(bundles []*bundle.DataBundle) error {
	if err := requireBundles(s.name, bundles); err != nil {
		return err
	}
	_, err := bundle.DecodeDataset(s.req.ParamConfig)
	return err
}

func (s *LoadDataBundleData) Apply(_ context.Context, bundles []*bundle.DataBundle) error {
	if err := s.VerifyExecutable(bundles); err != nil {
		return err
	}
	ds, err := bundle.DecodeDataset(s.req.ParamConfig)
	if err != nil {
		return err
	}
	return applyEach(bundles, func(b *bundle.DataBundle) error {
		return b.SetDataset(ds)
	})
}

func (s *LoadDataBundleData) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{}}
}

// storeParams addresses one stored snapshot per bundle, by position.
type storeParams struct {
	BundleKeys []string `mapstructure:"bundle_keys"`
}

func (s *base) storeKeys(st store.Store, bundles []*bundle.DataBundle) ([]string, error) {
	if st == nil {
		return nil, errors.Configurationf("%s needs a bundle store", s.name).
			WithField("missing", "store", "required")
	}
	if err := requireBundles(s.name, bundles); err != nil {
		return nil, err
	}
	if err := s.requireParams("bundle_keys"); err != nil {
		return nil, err
	}
	var p storeParams
	if err := s.decodeParams(&p); err != nil {
		return nil, err
	}
	if len(p.BundleKeys) != len(bundles) {
		return nil, errors.Preconditionf("%s got %d bundle_keys for %d data bundles", s.name, len(p.BundleKeys), len(bundles)).
			WithField("invalid", "bundle_keys", "length mismatch")
	}
	return p.BundleKeys, nil
}

// LoadDataBundleFromStore fills bundle i from the snapshot stored under bundle_keys[i].
type LoadDataBundleFromStore struct {
	base
	store store.Store
}

func NewLoadDataBundleFromStore(req *Request, deps Deps) Strategy {
	return &LoadDataBundleFromStore{
		base:  newBase("LoadDataBundleFromStore", req, deps),
		store: deps.Store,
	}
}

func (s *LoadDataBundleFromStore) VerifyExecutable(bundles []*bundle.DataBundle) error {
	_, err := s.storeKeys(s.store, bundles)
	return err
}

// Apply loads every snapshot before writing to any bundle.
func (s *LoadDataBundleFromStore) Apply(ctx context.Context, bundles []*bundle.DataBundle) error {
	keys, err := s.storeKeys(s.store, bundles)
	if err != nil {
		return err
	}
	loaded := make([]*bundle.DataBundle, len(keys))
	for i, key := range keys {
		snap, err := s.store.Load(ctx, key)
		if err != nil {
			return err
		}
		if loaded[i], err = bundle.FromSnapshot(snap); err != nil {
			return err
		}
	}
	for i, b := range bundles {
		if err := b.SetDataset(loaded[i].Dataset()); err != nil {
			return err
		}
		if loaded[i].HasFeatureSets() {
			b.AttachFeatureSets(loaded[i].FeatureSets())
		}
		s.logger.Debug("Loaded data bundle", zap.String("bundle_key", keys[i]), zap.Stringer("bundle_id", b.ID()))
	}
	return nil
}

func (s *LoadDataBundleFromStore) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{"bundle_keys": []string{}}}
}

// SaveDataBundle stores a snapshot of bundle i under bundle_keys[i].
type SaveDataBundle struct {
	base
	store store.Store
}

func NewSaveDataBundle(req *Request, deps Deps) Strategy {
	return &SaveDataBundle{
		base:  newBase("SaveDataBundle", req, deps),
		store: deps.Store,
	}
}

func (s *SaveDataBundle) VerifyExecutable(bundles []*bundle.DataBundle) error {
	_, err := s.storeKeys(s.store, bundles)
	return err
}

func (s *SaveDataBundle) Apply(ctx context.Context, bundles []*bundle.DataBundle) error {
	keys, err := s.storeKeys(s.store, bundles)
	if err != nil {
		return err
	}
	for i, b := range bundles {
		if err := s.store.Save(ctx, keys[i], b.Snapshot()); err != nil {
			return err
		}
		s.logger.Debug("Saved data bundle", zap.String("bundle_key", keys[i]), zap.Stringer("bundle_id", b.ID()))
	}
	return nil
}

func (s *SaveDataBundle) RequestConfig() RequestConfig {
	return RequestConfig{StrategyName: s.name, ParamConfig: map[string]any{"bundle_keys": []string{}}}
}

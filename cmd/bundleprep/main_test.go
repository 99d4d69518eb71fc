package main

import (
	"context"
	"testing"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorePersistsToPath(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Path: t.TempDir()}
	b := bundle.New()

	st, err := openStore(cfg)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "prepared-0", b.Snapshot()))
	require.NoError(t, st.Close())

	st, err = openStore(cfg)
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.Load(ctx, "prepared-0")
	require.NoError(t, err)
	assert.Equal(t, b.ID().String(), snap.ID)
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/catalog"
	"github.com/sells-group/bom-cli/internal/config"
	"github.com/sells-group/bom-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "memory"}})
	st, err := initStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)

	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "jobs.db"),
	}})
	st, err = openStore(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mongo"}})
	_, err = initStore(ctx)
	assert.Error(t, err)
}

func TestInitCache(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "file", Dir: t.TempDir()}})
	c, err := initCache(ctx)
	require.NoError(t, err)
	assert.IsType(t, &catalog.FileCache{}, c)

	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "cache.db")}})
	c, err = initCache(ctx)
	require.NoError(t, err)
	sc, ok := c.(*catalog.SQLiteCache)
	require.True(t, ok)
	require.NoError(t, sc.Close())

	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "redis"}})
	_, err = initCache(ctx)
	assert.Error(t, err)
}

func TestInferenceProvider(t *testing.T) {
	withConfig(t, &config.Config{
		Inference: config.InferenceConfig{Provider: "openai", MaxTokens: 2048},
		OpenAI:    config.OpenAIConfig{Key: "sk", Model: "gpt-4o", BaseURL: "http://local"},
		Anthropic: config.AnthropicConfig{Key: "ak", Model: "claude"},
	})
	p := inferenceProvider()
	assert.Equal(t, "openai", p.Name)
	assert.Equal(t, "sk", p.APIKey)
	assert.Equal(t, "http://local", p.BaseURL)
	assert.EqualValues(t, 2048, p.MaxTokens)

	cfg.Inference.Provider = "anthropic"
	p = inferenceProvider()
	assert.Equal(t, "ak", p.APIKey)
	assert.Equal(t, "claude", p.Model)
}

func TestInitEnv_ValidatesFirst(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "memory"}})
	_, err := initEnv(context.Background(), "enrich")
	assert.Error(t, err)
}

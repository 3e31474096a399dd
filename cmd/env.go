package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/bom"
	"github.com/sells-group/bom-cli/internal/catalog"
	"github.com/sells-group/bom-cli/internal/inference"
	"github.com/sells-group/bom-cli/internal/resilience"
	"github.com/sells-group/bom-cli/internal/store"
	"github.com/sells-group/bom-cli/pkg/nexar"
)

// appEnv holds the wired components shared by the commands.
type appEnv struct {
	Store        store.Store
	Cache        catalog.Cache
	Inference    *inference.Service
	Orchestrator *bom.Orchestrator
	Evaluator    *bom.Evaluator

	closers []func() error
}

// Close releases the store and cache.
func (e *appEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode and wires only what mode needs.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, st.Close)
	if err := st.Migrate(ctx); err != nil {
		return nil, eris.Wrap(err, "migrate store")
	}
	env.Store = st

	completer, err := inference.NewCompleter(ctx, inferenceProvider())
	if err != nil {
		return nil, err
	}
	env.Inference = inference.NewService(completer,
		inference.WithMaxConcurrency(cfg.Inference.MaxConcurrency),
		inference.WithKnowledgeBase(inference.KnowledgeBase{
			PreferredSuppliers:  cfg.Knowledge.PreferredSuppliers,
			SupplierReliability: cfg.Knowledge.SupplierReliability,
			AvoidCountries:      cfg.Knowledge.AvoidCountries,
			PreferRegions:       cfg.Knowledge.PreferRegions,
		}),
	)
	env.Evaluator = bom.NewEvaluator(st, env.Inference)

	if mode == "enrich" || mode == "serve" {
		cache, err := initCache(ctx)
		if err != nil {
			return nil, err
		}
		env.Cache = cache
		if c, isCloser := cache.(interface{ Close() error }); isCloser {
			env.closers = append(env.closers, c.Close)
		}

		worker := bom.NewWorker(env.Inference, catalog.NewClient(initDirectory(), cache))
		env.Orchestrator = bom.NewOrchestrator(env.Inference, worker, st, bom.Config{
			MaxConcurrentLookups: cfg.Batch.MaxConcurrentLookups,
			HeadRows:             cfg.Batch.HeadRows,
		})
	}

	ok = true
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bom.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCache(ctx context.Context) (catalog.Cache, error) {
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	switch cfg.Cache.Backend {
	case "sqlite":
		return catalog.NewSQLiteCache(ctx, cfg.Cache.Path, ttl)
	case "file", "":
		return catalog.NewFileCache(cfg.Cache.Dir, ttl)
	default:
		return nil, eris.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

func initDirectory() nexar.Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Nexar.MaxAttempts
	return nexar.NewClient(cfg.Nexar.Token,
		nexar.WithBaseURL(cfg.Nexar.URL),
		nexar.WithTimeout(time.Duration(cfg.Nexar.TimeoutSecs)*time.Second),
		nexar.WithRateLimit(cfg.Nexar.RatePerSec, cfg.Nexar.Burst),
		nexar.WithRetry(retry),
		nexar.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{Name: "nexar"})),
	)
}

func inferenceProvider() inference.Provider {
	p := inference.Provider{Name: cfg.Inference.Provider, MaxTokens: cfg.Inference.MaxTokens}
	switch cfg.Inference.Provider {
	case "openai":
		p.APIKey, p.Model, p.BaseURL = cfg.OpenAI.Key, cfg.OpenAI.Model, cfg.OpenAI.BaseURL
	case "gemini":
		p.APIKey, p.Model = cfg.Gemini.Key, cfg.Gemini.Model
	default:
		p.APIKey, p.Model = cfg.Anthropic.Key, cfg.Anthropic.Model
	}
	return p
}

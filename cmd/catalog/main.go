package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"VapeShelf/internal/catalog"
	"VapeShelf/pkg/kit"
)

type config struct {
	Port     string `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects the SQL store: a postgres URL or sqlite:<path>.
	// Empty keeps everything in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL      time.Duration `env:"REDIS_TTL" envDefault:"30s"`

	APIKey       string `env:"API_KEY"`
	APIKeyHash   string `env:"API_KEY_HASH"`
	MetricsToken string `env:"METRICS_TOKEN"`

	WriteLimitPerMin int  `env:"WRITE_LIMIT_PER_MIN" envDefault:"120"`
	SeedDemo         bool `env:"SEED_DEMO" envDefault:"false"`
}

func main() {
	service := "catalog"

	var cfg config
	if err := kit.LoadConfig(&cfg); err != nil {
		kit.NewLogger(service, "").Fatal("load config failed", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store failed", zap.Error(err))
	}
	defer closeStore()

	if cfg.SeedDemo {
		n, err := catalog.Seed(ctx, store)
		if err != nil {
			log.Fatal("seed catalog failed", zap.Error(err))
		}
		if n > 0 {
			log.Info("seeded demo catalog", zap.Int("products", n))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiKey := kit.NewAPIKey(cfg.APIKey, cfg.APIKeyHash)
	if !apiKey.Enabled() {
		log.Warn("API_KEY and API_KEY_HASH unset, catalog routes are open")
	}

	h := catalog.NewHandler(&catalog.Server{Store: store, Log: log}, catalog.HTTPDeps{
		Log:              log,
		Service:          service,
		Registry:         reg,
		MetricsEnabled:   true,
		MetricsToken:     cfg.MetricsToken,
		APIKey:           apiKey,
		WriteLimitPerMin: cfg.WriteLimitPerMin,
	})

	if err := kit.RunHTTPServer(":"+cfg.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config, log *zap.Logger) (catalog.Store, func(), error) {
	var (
		store   catalog.Store = catalog.NewMemStore()
		closers []func()
	)

	if cfg.DatabaseURL != "" {
		sqlStore, err := catalog.OpenSQLStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
		closers = append(closers, func() { _ = sqlStore.Close() })
		log.Info("using sql store")
	} else {
		log.Info("using in-memory store")
	}

	if cfg.RedisAddr != "" {
		rdb, err := catalog.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		store = catalog.NewCachedStore(store, catalog.NewRedisListCache(rdb, cfg.RedisTTL), log)
		closers = append(closers, func() { _ = rdb.Close() })
		log.Info("product list cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	return store, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// README: Entry point; loads config, wires stores, collaborators and services, serves the HTTP API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"freightquote/internal/ai"
	"freightquote/internal/config"
	httptransport "freightquote/internal/http"
	"freightquote/internal/infra"
	"freightquote/internal/maps"
	"freightquote/internal/modules/aiusage"
	"freightquote/internal/modules/costing"
	"freightquote/internal/modules/location"
	"freightquote/internal/modules/offer"
	"freightquote/internal/modules/settings"
	"freightquote/internal/toll"
)

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

type stores struct {
	settings settings.Repository
	costs    costing.Repository
	offers   offer.Repository
	aiUsage  aiusage.Repository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var health []httptransport.Pinger
	st := stores{
		settings: settings.NewMemoryStore(),
		costs:    costing.NewMemoryStore(),
		offers:   offer.NewMemoryStore(),
		aiUsage:  aiusage.NewMemoryStore(),
	}
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.ConnectWait, logger)
		if err != nil {
			logger.Fatal("database init failed", zap.Error(err))
		}
		defer dbPool.Close()
		if err := infra.MigrateUp(ctx, dbPool, logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		st = stores{
			settings: settings.NewStore(dbPool),
			costs:    costing.NewStore(dbPool),
			offers:   offer.NewStore(dbPool),
			aiUsage:  aiusage.NewStore(dbPool),
		}
		health = append(health, dbPool)
	} else {
		logger.Warn("QUOTE_DB_DSN not set, using in-memory stores")
	}

	var routes costing.RouteResolver
	if cfg.Maps.APIKey != "" {
		router, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init failed", zap.Error(err))
		}
		var cache location.SegmentCache
		if cfg.Redis.Addr != "" {
			rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				logger.Fatal("redis init failed", zap.Error(err))
			}
			defer rdb.Close()
			cache = location.NewStore(rdb, cfg.Redis.TTL)
			health = append(health, redisPinger{rdb: rdb})
		}
		routes = location.NewService(router, cache, cfg.Maps.Timeout, logger.Named("location"))
	}

	var tolls costing.TollRateProvider
	if cfg.Toll.BaseURL != "" {
		tolls = toll.NewClient(cfg.Toll.BaseURL, cfg.Toll.APIKey,
			toll.WithHTTPClient(&http.Client{Timeout: cfg.Toll.Timeout}),
			toll.WithMaxElapsed(cfg.Toll.Timeout),
			toll.WithLogger(logger.Named("toll")))
	}

	funFacts := newFunFacts(ctx, cfg.AI, aiusage.NewService(st.aiUsage, cfg.AI.MonthlyQuota), logger)

	var verifier infra.TokenVerifier
	if !cfg.HTTP.AuthDisabled {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("firebase init failed", zap.Error(err))
		}
	}

	settingsSvc := settings.NewService(st.settings, logger.Named("settings"))
	costSvc := costing.NewService(st.costs, settingsSvc, tolls, routes, logger.Named("costing"), costing.Config{
		Scope:    cfg.Pricing.Scope,
		Strict:   cfg.Pricing.Strict,
		Validity: cfg.Pricing.Validity,
	})
	offerSvc := offer.NewService(st.offers, costSvc, funFacts, logger.Named("offer"))

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Settings: settingsSvc,
		Costs:    costSvc,
		Offers:   offerSvc,
		Verifier: verifier,
		Health:   health,
		Logger:   logger,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, handler, cfg.HTTP.ShutdownTimeout, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

// newFunFacts chains the configured AI providers; it returns nil when none is configured.
func newFunFacts(ctx context.Context, cfg config.AIConfig, quota ai.Quota, logger *zap.Logger) offer.FunFactProvider {
	var chain ai.Chain
	if cfg.GeminiKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			logger.Warn("gemini unavailable", zap.Error(err))
		} else {
			chain = append(chain, gemini)
		}
	}
	if cfg.OpenAIKey != "" {
		chain = append(chain, ai.NewChatGPTProvider(cfg.OpenAIKey, "", &http.Client{Timeout: cfg.Timeout + time.Second}))
	}
	if len(chain) == 0 {
		return nil
	}
	return ai.NewFunFacts(chain, quota, cfg.Timeout, logger.Named("ai"))
}

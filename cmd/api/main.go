package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"fliptowin/internal/cache"
	"fliptowin/internal/config"
	"fliptowin/internal/database"
	"fliptowin/internal/events"
	"fliptowin/internal/game"
	"fliptowin/internal/logger"
	"fliptowin/internal/metrics"
	"fliptowin/internal/server"
	"fliptowin/internal/store"
)

type backends struct {
	accounts game.AccountStore
	db       database.Service
	cache    cache.Service
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (backends, error) {
	switch cfg.Store {
	case store.BackendMemory:
		log.Warn("using in-memory account store; balances are lost on restart")
		return backends{accounts: store.NewMemoryStore()}, nil

	case store.BackendRedis:
		rc, err := cache.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			return backends{}, err
		}
		return backends{accounts: store.NewRedisStore(rc.GetClient(), cfg.Redis.MaxRetries), cache: rc}, nil

	case store.BackendPostgres:
		if cfg.RunMigrations {
			log.Info("running migrations", zap.String("path", cfg.MigrationsPath))
			if err := database.RunMigrations(cfg.Database.URL(), cfg.MigrationsPath); err != nil {
				return backends{}, err
			}
		}
		db, err := database.New(ctx, cfg.Database, log)
		if err != nil {
			return backends{}, err
		}
		return backends{accounts: store.NewPostgresStore(db.Pool()), db: db}, nil
	}
	return backends{}, fmt.Errorf("unknown store backend %q", cfg.Store)
}

func newPublisher(cfg *config.Config, log *zap.Logger) interface {
	game.SettlementPublisher
	Close() error
} {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka not configured; settlement events disabled")
		return events.NopPublisher{}
	}
	log.Info("publishing settlements to kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.TopicBetSettled))
	w := events.NewKafkaWriter(strings.Join(cfg.Kafka.Brokers, ","), cfg.Kafka.TopicBetSettled)
	return events.NewKafkaPublisher(w, log)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("store", cfg.Store), zap.Int64("round_duration_ms", cfg.Game.RoundDurationMs))

	if cfg.Game.InsecureSecret {
		log.Warn("GAME_SECRET is not set; using the insecure development secret. Outcomes are predictable.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clock, err := game.NewRoundClock(clockwork.NewRealClock(), cfg.Game.RoundDurationMs, cfg.Game.BettingLockMs)
	if err != nil {
		log.Fatal("round clock", zap.Error(err))
	}
	oracle, err := cfg.NewOracle()
	if err != nil {
		log.Fatal("oracle", zap.Error(err))
	}
	engine, err := game.NewSettlementEngine(cfg.Game.MaxBetAmount)
	if err != nil {
		log.Fatal("settlement engine", zap.Error(err))
	}

	b, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("account store", zap.Error(err))
	}

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	hub := game.NewHub(log)
	go hub.Run(ctx)

	svc, err := game.NewService(game.Deps{
		Clock:     clock,
		Oracle:    oracle,
		Engine:    engine,
		Accounts:  b.accounts,
		Publisher: publisher,
		Hub:       hub,
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("game service", zap.Error(err))
	}

	if cfg.Game.AnnounceRounds {
		go game.NewAnnouncer(clock, oracle, hub, m, log).Run(ctx)
	}

	srv := server.New(server.Options{
		Game:     svc,
		Hub:      hub,
		DB:       b.db,
		Cache:    b.cache,
		Gatherer: reg,
		HTTP:     cfg.HTTP,
		Store:    cfg.Store,
		Logger:   log,
	})
	srv.RegisterFiberRoutes()

	go func() {
		addr := ":" + cfg.HTTP.Port
		log.Info("api listening", zap.String("addr", addr))
		if err := srv.Listen(addr); err != nil {
			log.Error("api srv", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

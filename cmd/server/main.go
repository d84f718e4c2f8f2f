package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/queueease/internal/broker"
	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/database"
	"github.com/iliyamo/queueease/internal/engine"
	"github.com/iliyamo/queueease/internal/handler"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/metrics"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/notify"
	"github.com/iliyamo/queueease/internal/repository"
	"github.com/iliyamo/queueease/internal/router"
	"github.com/iliyamo/queueease/internal/supervisor"
	"github.com/iliyamo/queueease/internal/websocket"
)

// stores groups the persistence backends chosen at startup.
type stores struct {
	queue    repository.QueueStore
	users    handler.UserStore
	tokens   handler.TokenStore
	services handler.ServiceLister
	audit    interface {
		handler.AuditReader
		broker.AuditRecorder
	}
	db *sql.DB
}

// defaultServices seeds the catalog when running without MySQL.
var defaultServices = []model.Service{
	{ID: 1, Name: "General", Description: "General enquiries"},
	{ID: 2, Name: "Payments", Description: "Payments and billing"},
	{ID: 3, Name: "Support", Description: "Technical support"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	qcfg := config.LoadQueueConfig()
	bcfg := config.LoadBrokerConfig()

	st, err := openStores(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("open storage")
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logging.Warn().Msg("redis unavailable; rate limit, cache, redis lock and fanout disabled")
	} else {
		defer rdb.Close()
	}

	tree := supervisor.New(supervisor.Config{})

	registry := notify.NewRegistry()
	var pusher notify.Pusher = registry
	if qcfg.FanoutEnabled && rdb != nil {
		fanout := notify.NewRedisFanout(rdb, registry)
		tree.AddMessaging(fanout)
		pusher = fanout
	}
	dispatcher := notify.NewDispatcher(st.queue, pusher)

	deps := engine.Deps{
		Store:    st.queue,
		Notifier: dispatcher,
		Locker:   newLocker(qcfg, rdb),
	}
	if bcfg.Enabled {
		pub := broker.NewPublisher(bcfg, broker.DialAMQP)
		defer pub.Close()
		deps.Events = pub
		tree.AddMessaging(broker.NewConsumer(bcfg, st.audit))
	}
	eng := engine.New(deps, engine.Config{AutoPromote: qcfg.AutoPromote, QueueName: qcfg.Name})

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(logging.RequestLogger(metrics.RecordHTTP))

	rd := router.Deps{
		JWTSecret:     cfg.JWTSecret,
		Redis:         rdb,
		RateLimit:     config.LoadRateLimitConfig(),
		Cache:         config.LoadCacheConfig(),
		Auth:          handler.NewAuthHandler(cfg, st.users, st.tokens),
		Queue:         handler.NewQueueHandler(eng, st.services, qcfg.HistoryLimit),
		Notifications: handler.NewNotificationHandler(dispatcher, qcfg.HistoryLimit),
		Admin: &handler.AdminHandler{
			Engine:     eng,
			Dispatcher: dispatcher,
			Users:      st.users,
			Audit:      st.audit,
			Limit:      qcfg.HistoryLimit,
		},
		WS: websocket.NewHandler(registry),
	}
	// a nil *sql.DB inside the interface would be called, so leave it unset
	if st.db != nil {
		rd.DB = st.db
	}
	router.RegisterRoutes(e, rd)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPI(supervisor.NewHTTPService(srv, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", srv.Addr).
		Str("env", cfg.Env).
		Bool("auto_promote", qcfg.AutoPromote).
		Str("lock", qcfg.LockBackend).
		Bool("broker", bcfg.Enabled).
		Msg("queueease starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
	eng.Close()
	logging.Info().Msg("shutdown complete")
}

func openStores(cfg config.Config) (stores, error) {
	if cfg.InMemory() {
		mem := repository.NewMemoryStore(defaultServices...)
		accounts := repository.NewMemoryAccounts()
		logging.Warn().Msg("APP_ENV=memory: queue, accounts and audit are not persisted")
		return stores{
			queue:    mem,
			users:    accounts,
			tokens:   accounts,
			services: mem,
			audit:    &repository.MemoryAudit{},
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
	}
	return stores{
		queue:    repository.NewTicketRepo(db),
		users:    repository.NewUserRepo(db),
		tokens:   repository.NewTokenRepo(db),
		services: repository.NewServiceRepo(db),
		audit:    repository.NewAuditRepo(db),
		db:       db,
	}, nil
}

func newLocker(qcfg config.QueueConfig, rdb *redis.Client) engine.Locker {
	if qcfg.LockBackend == config.LockRedis {
		if rdb != nil {
			return engine.NewRedisLocker(rdb, qcfg.LockTTL)
		}
		logging.Warn().Msg("QUEUE_LOCK_BACKEND=redis but redis is unavailable; using local lock")
	}
	return engine.NewLocalLocker()
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "wastefee-cloud/internal/api/http"
	"wastefee-cloud/internal/audit"
	"wastefee-cloud/internal/config"
	"wastefee-cloud/internal/eventing"
	"wastefee-cloud/internal/idempotency"
	"wastefee-cloud/internal/municipality/infrastructure/schedule"
	"wastefee-cloud/internal/notify"
	"wastefee-cloud/internal/observability/metrics"
	rewardsapp "wastefee-cloud/internal/rewards/application"
	rewards "wastefee-cloud/internal/rewards/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
	walletmemory "wastefee-cloud/internal/wallet/infrastructure/memory"
	walletpostgres "wastefee-cloud/internal/wallet/infrastructure/postgres"
)

const requestIDHeader = "X-Request-ID"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := schedule.Load(cfg.Wallet.MunicipalitySchedule)
	if err != nil {
		logger.Fatal("municipality schedule error", zap.Error(err))
	}

	checks := map[string]apihttp.HealthCheck{}
	var (
		repo     wallet.Repository
		auditLog audit.Logger
	)
	switch cfg.Store.Driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
		metrics.Init(db, logger)
		pgRepo, err := walletpostgres.NewRepository(db)
		if err != nil {
			logger.Fatal("wallet repository error", zap.Error(err))
		}
		repo = pgRepo
		auditLog = audit.NewRepository(db)
		checks["postgres"] = db.PingContext
	default:
		metrics.Init(nil, logger)
		repo = walletmemory.NewRepository()
		auditLog = audit.NewMemoryLog()
	}

	bus := eventing.NewInMemoryBus()
	publisher, err := eventing.NewPublisher(bus)
	if err != nil {
		logger.Fatal("event publisher error", zap.Error(err))
	}
	eventTypes := []string{
		eventing.EventTypeOf[walletapp.WalletCredited](),
		eventing.EventTypeOf[walletapp.PaymentSettled](),
		eventing.EventTypeOf[walletapp.SurplusResolved](),
	}
	auditHandler, err := audit.EventHandler(auditLog)
	if err != nil {
		logger.Fatal("audit handler error", zap.Error(err))
	}
	for _, eventType := range eventTypes {
		publisher.Subscribe(eventType, eventing.LogHandler(logger))
		publisher.Subscribe(eventType, auditHandler)
	}
	if cfg.NATS.URL != "" {
		conn, err := eventing.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("nats connect error", zap.Error(err))
		}
		defer conn.Close()
		forwarder, err := eventing.NewNATSForwarder(conn, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			logger.Fatal("nats forwarder error", zap.Error(err))
		}
		processed := eventing.NewMemoryProcessedStore()
		for _, eventType := range eventTypes {
			eventing.Subscribe(bus, eventType, "nats-forwarder", forwarder.Handle, processed)
		}
	}

	if cfg.Notify.WebhookURL != "" {
		notifyHandler, err := notify.PaymentSettledHandler(notify.NewWebhookNotifier(cfg.Notify.WebhookURL), logger)
		if err != nil {
			logger.Fatal("payment notifier error", zap.Error(err))
		}
		eventing.Subscribe(bus, eventing.EventTypeOf[walletapp.PaymentSettled](), "payment-webhook", notifyHandler, eventing.NewMemoryProcessedStore())
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.URL != "" {
		redisStore, err := idempotency.NewRedisStore(cfg.Redis.URL, cfg.Redis.IdempotencyTTL, logger)
		if err != nil {
			logger.Fatal("redis error", zap.Error(err))
		}
		defer redisStore.Close()
		idem = redisStore
		checks["redis"] = redisStore.Ping
	}

	locker := walletapp.NewWalletLocker(cfg.Wallet.LockTimeout)
	clock := walletapp.SystemClock{}
	opts := []walletapp.Option{walletapp.WithLogger(logger)}

	ledger, err := walletapp.NewLedgerService(repo, registry, locker, publisher, clock, opts...)
	if err != nil {
		logger.Fatal("ledger service error", zap.Error(err))
	}
	settlement, err := walletapp.NewSettlementService(repo, registry, locker, publisher, clock, opts...)
	if err != nil {
		logger.Fatal("settlement service error", zap.Error(err))
	}
	surplus, err := walletapp.NewSurplusService(repo, registry, locker, publisher, clock, opts...)
	if err != nil {
		logger.Fatal("surplus service error", zap.Error(err))
	}

	policy, err := rewards.NewSpecialDaysPolicy(rewards.WeekendPolicy{}, cfg.Rewards.DoublePointsDates...)
	if err != nil {
		logger.Fatal("double points policy error", zap.Error(err))
	}
	calendar := rewards.NewCalendar(rewards.SystemClock{}, policy, cfg.Location())
	calculator, err := rewards.NewRewardCalculator(cfg.Rewards.KWhRate)
	if err != nil {
		logger.Fatal("reward calculator error", zap.Error(err))
	}
	sessions, err := rewardsapp.NewSessionService(calculator, calendar, ledger, logger)
	if err != nil {
		logger.Fatal("session service error", zap.Error(err))
	}

	if cfg.Settlement.Enabled {
		scheduler, err := walletapp.NewSettlementScheduler(settlement, cfg.Settlement.Day, cfg.Settlement.At, logger)
		if err != nil {
			logger.Fatal("settlement scheduler error", zap.Error(err))
		}
		go scheduler.Start(ctx)
	}

	handler, err := apihttp.NewHandler(apihttp.Services{
		Ledger:      ledger,
		Settlement:  settlement,
		Surplus:     surplus,
		Sessions:    sessions,
		Idempotency: idem,
		Currency:    cfg.Rewards.Currency,
		Logger:      logger,
		RetryAfter:  cfg.Wallet.LockTimeout,
		Checks:      checks,
	})
	if err != nil {
		logger.Fatal("api handler error", zap.Error(err))
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	handler.Register(router)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      loggingMiddleware(router, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.Float64("kwh_rate", cfg.Rewards.KWhRate),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Development() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger.With(zap.String("service", cfg.App.Name))
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(eventing.WithCorrelationID(r.Context(), requestID))

		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

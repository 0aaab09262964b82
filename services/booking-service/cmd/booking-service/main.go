package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/chatbook/libs/config"
	"github.com/md-rashed-zaman/chatbook/libs/db"
	"github.com/md-rashed-zaman/chatbook/libs/httpx"
	"github.com/md-rashed-zaman/chatbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/chatbook/libs/otel"
	"github.com/md-rashed-zaman/chatbook/libs/redisx"
	"github.com/md-rashed-zaman/chatbook/libs/runtime"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/conversation"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/session"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/tools"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type settings struct {
	port           string
	storageDriver  string
	sessionTTL     time.Duration
	modelTimeout   time.Duration
	historyWindow  int
	rateLimit      int
	requestTimeout time.Duration
	bodyLimit      int
}

func loadSettings() (settings, error) {
	var s settings
	var err error
	if s.port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	s.storageDriver = strings.ToLower(config.String("STORAGE_DRIVER", "postgres"))
	if s.storageDriver != "postgres" && s.storageDriver != "memory" {
		return s, fmt.Errorf("STORAGE_DRIVER must be postgres or memory (got %q)", s.storageDriver)
	}
	if s.sessionTTL, err = config.Duration("SESSION_TTL", 30*time.Minute); err != nil {
		return s, err
	}
	if s.modelTimeout, err = config.Duration("MODEL_TIMEOUT", 20*time.Second); err != nil {
		return s, err
	}
	if s.historyWindow, err = config.Int("HISTORY_WINDOW", 40); err != nil {
		return s, err
	}
	turn := conversation.Config{ModelTimeout: s.modelTimeout, HistoryWindow: s.historyWindow}
	if floor := turn.MinHistoryWindow(); s.historyWindow < floor {
		return s, fmt.Errorf("HISTORY_WINDOW must be at least %d (got %d)", floor, s.historyWindow)
	}
	if s.rateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return s, err
	}
	if s.requestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", turn.TurnBudget()); err != nil {
		return s, err
	}
	if budget := turn.TurnBudget(); s.requestTimeout < budget {
		return s, fmt.Errorf("HTTP_REQUEST_TIMEOUT must be at least %s for MODEL_TIMEOUT=%s (got %s)", budget, s.modelTimeout, s.requestTimeout)
	}
	if s.bodyLimit, err = config.Int("HTTP_BODY_LIMIT_BYTES", 64<<10); err != nil {
		return s, err
	}
	return s, nil
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}
	cal, err := calendar.FromEnv()
	if err != nil {
		logger.Error("invalid business calendar", "err", err)
		panic(err)
	}
	secret, err := config.RequiredString("SESSION_SECRET")
	if err != nil {
		panic(err)
	}
	apiKey, err := config.RequiredString("GEMINI_API_KEY")
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var readyChecks []runtime.ReadyCheck

	var store storage.Store
	switch cfg.storageDriver {
	case "memory":
		logger.Warn("using in-memory appointment store; data is lost on restart")
		store = storage.NewMemoryStore()
	default:
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			panic(err)
		}
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := storage.Migrate(ctx, pool, logger); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}

		outboxRepo := outbox.NewRepository()
		store = storage.NewPostgresStore(pool, outboxRepo)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := config.String("KAFKA_BROKERS", "")
		pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
		if err != nil {
			panic(err)
		}
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: pollEvery,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		if brokers != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	}

	var (
		rdb          *redis.Client
		sessionStore session.Store
		history      conversation.HistoryStore
		leases       conversation.Leaser
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			panic(err)
		}
		rdb, err = redisx.Open(ctx, redisx.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", ""), DB: redisDB})
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			panic(err)
		}
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb)
		history = conversation.NewRedisHistory(rdb, cfg.historyWindow, cfg.sessionTTL)
		leases = conversation.NewRedisLeaser(rdb)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set; sessions and chat history are kept in process memory")
		sessionStore = session.NewMemoryStore(nil)
		history = conversation.NewMemoryHistory(cfg.historyWindow)
		leases = conversation.NewMemoryLeaser()
	}

	sessions, err := session.NewManager(sessionStore, secret, cfg.sessionTTL, nil)
	if err != nil {
		panic(err)
	}

	model, err := llm.NewGemini(ctx, apiKey, config.String("GEMINI_MODEL", "gemini-1.5-flash"))
	if err != nil {
		logger.Error("model client init failed", "err", err)
		panic(err)
	}
	defer model.Close()

	engine := availability.NewEngine(store, cal, logger)
	registry := tools.NewRegistry(engine, logger)
	orchestrator := conversation.NewOrchestrator(model, registry, history, leases, cal, logger, conversation.Config{
		ModelTimeout:  cfg.modelTimeout,
		HistoryWindow: cfg.historyWindow,
	})

	sessionHandler := handlers.NewSessionHandler(sessions, orchestrator, logger)
	chatHandler := handlers.NewChatHandler(sessions, orchestrator, logger)
	bookingHandler := handlers.NewBookingHandler(engine, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/sessions", sessionHandler.Create)
	mux.HandleFunc("/api/v1/sessions/end", sessionHandler.End)
	mux.HandleFunc("/api/v1/chat", chatHandler.Chat)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", handlers.UserIDHeader, httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimiter(rdb, cfg.rateLimit, config.Bool("RATE_LIMIT_FAIL_OPEN", true), logger),
		httpx.WithBodyLimit(int64(cfg.bodyLimit)),
		httpx.WithTimeout(cfg.requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("booking service configured", "storage", cfg.storageDriver, "calendar", cal.Describe())
	if err := runtime.Serve(ctx, srv, logger, 10*time.Second); err != nil {
		panic(err)
	}
}

// rateLimiter shares the window across replicas when redis is configured.
func rateLimiter(rdb *redis.Client, perMinute int, failOpen bool, logger *slog.Logger) httpx.Middleware {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "chatbook:rl", httpx.BearerOrClientKey).Middleware(logger, failOpen)
	}
	return httpx.NewRateLimiter(perMinute, time.Minute, httpx.BearerOrClientKey).Middleware()
}

package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"github.com/asif-mahmud/medisched/libs/config"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/libs/httpx"
	"github.com/asif-mahmud/medisched/libs/kafkax"
	otelx "github.com/asif-mahmud/medisched/libs/otel"
	"github.com/asif-mahmud/medisched/libs/runtime"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/audit"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/handlers"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/outbox"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/sessions"
	"github.com/asif-mahmud/medisched/services/auth-service/internal/storage"
)

func buildSigner() (handlers.TokenSigner, error) {
	if pemBlobs := config.String("JWT_RS256_KEYS", ""); pemBlobs != "" {
		keys, err := handlers.ParseRS256KeySet(pemBlobs)
		if err != nil {
			return nil, err
		}
		return handlers.NewRotatingRS256Signer(keys, config.String("JWT_ACTIVE_KID", ""))
	}
	if pemKey := config.String("JWT_RS256_KEY", ""); pemKey != "" {
		return handlers.NewRS256Signer([]byte(pemKey), config.String("JWT_ACTIVE_KID", ""))
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	return handlers.NewHS256Signer(secret), nil
}

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, service)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	signer, err := buildSigner()
	if err != nil {
		logger.Error("signer setup failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	users := storage.NewUserRepository(pool, outboxRepo)
	auditRepo := audit.NewRepository(pool, outboxRepo)
	refreshRepo := sessions.NewRefreshRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	refreshTTLHours := config.Int("REFRESH_TOKEN_TTL_HOURS", 720)
	authHandler := handlers.NewAuthHandler(signer, users, auditRepo, refreshRepo, time.Duration(refreshTTLHours)*time.Hour)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	authHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

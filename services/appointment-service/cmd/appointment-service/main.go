package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"github.com/asif-mahmud/medisched/libs/config"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/libs/httpx"
	"github.com/asif-mahmud/medisched/libs/kafkax"
	otelx "github.com/asif-mahmud/medisched/libs/otel"
	"github.com/asif-mahmud/medisched/libs/runtime"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/consumer"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/directory"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/handlers"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/inbox"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/outbox"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8083")
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

	outboxRepo := outbox.NewRepository()
	repo := storage.NewAppointmentRepository(pool, outboxRepo)
	doctorCache := storage.NewDoctorCacheRepository(pool)

	dirClient := directory.NewClient(
		config.String("PATIENT_SERVICE_URL", "http://patient-service:8081"),
		config.String("DOCTOR_SERVICE_URL", "http://doctor-service:8082"),
		time.Duration(config.Int("DIRECTORY_TIMEOUT_SECONDS", 3))*time.Second,
	)
	var doctorSource directory.DoctorSource = dirClient
	if grpcSource, err := directory.GRPCDoctorSource(config.String("DOCTOR_GRPC_ADDR", "")); err != nil {
		logger.Error("doctor grpc source init failed; using http", "err", err)
	} else if grpcSource != nil {
		doctorSource = grpcSource
	}
	resolver := directory.NewResolver(dirClient, doctorSource, doctorCache, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Keep the doctor replica warm from directory events so read enrichment
	// survives doctor-service downtime.
	inboxRepo := inbox.NewRepository(pool)
	doctorConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "appointment-service"),
		Topic:   config.String("KAFKA_DOCTOR_TOPIC", "directory.doctor.upserted.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			Specialization string `json:"specialization"`
			Active         bool   `json:"active"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid doctor event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.ID == "" {
			logger.Error("doctor event missing id", "topic", msg.Topic)
			return nil
		}
		return doctorCache.UpsertDoctor(ctx, directory.DoctorRef{
			ID:             payload.ID,
			DisplayName:    payload.Name,
			Specialization: payload.Specialization,
			Active:         payload.Active,
		})
	})
	go doctorConsumer.Run(ctx)

	apptHandler := handlers.NewAppointmentHandler(repo, resolver, logger, handlers.Config{
		WorkdayStart:       config.String("WORKDAY_START", "09:00"),
		WorkdayEnd:         config.String("WORKDAY_END", "17:00"),
		SlotStepMinutes:    config.Int("SLOT_STEP_MINUTES", 30),
		MaxDurationMinutes: config.Int("APPOINTMENT_MAX_DURATION_MINUTES", 480),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	apptHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")
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

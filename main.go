package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	appinventory "github.com/Zhima-Mochi/minishop-inventory/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-inventory/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-inventory/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/config"
	domcatalog "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/idempotency"
	kafkarelay "github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/mongostore"
	obsinfra "github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/persistence"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-inventory/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-inventory/internal/presentation/worker"
)

const (
	shutdownTimeout      = 10 * time.Second
	idempotencyKeyPrefix = "minishop:payment-events:"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := zaplogger.New(logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       cfg.Telemetry.Enabled,
		Endpoint:      cfg.Telemetry.Endpoint,
		Insecure:      cfg.Telemetry.Insecure,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
		ServiceName:   cfg.App.Name,
		Environment:   cfg.App.Env,
	}, systemLogger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("telemetry_shutdown_error", observability.F("error", err))
		}
	}()

	registry := prometrics.New("")
	tel := obsinfra.New(
		oteltrace.NewWithProvider(provider.TracerProvider(), cfg.App.Name),
		zaplogger.New(baseLogger),
		registry,
	)

	repos, err := openStorage(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer repos.close()

	idem, closeIdem, err := openIdempotencyStore(ctx, cfg.Redis, systemLogger)
	if err != nil {
		return err
	}
	defer closeIdem()

	bus := outbox.NewBus(tel.Logger(), outbox.Options{})

	var kafkaClose func() error
	if cfg.Kafka.Enabled {
		writer := kafkarelay.NewWriter(cfg.Kafka.Brokers)
		kafkarelay.NewRelay(writer, cfg.Kafka.Topic, tel).Attach(bus)
		kafkaClose = writer.Close
		systemLogger.Info("kafka_relay_enabled",
			observability.F("brokers", cfg.Kafka.Brokers),
			observability.F("topic", cfg.Kafka.Topic),
		)
	}

	ids := id.NewUUIDGenerator()
	gw := gateway.NewSimulated(bus, cfg.Payment.SuccessRate, cfg.Payment.CallbackDelay, tel.Logger())

	stock := appinventory.NewReservationManager(repos.ledgers, repos.reservations, ids, bus, tel, appinventory.Options{
		ConflictRetries: cfg.Inventory.ConflictRetries,
	})
	validator := cart.NewValidator(repos.catalog, repos.ledgers, cfg.Pricing.DriftTolerance, tel)
	payments := apppayment.NewLifecycle(repos.payments, gw, idem, ids, bus, tel)
	orders := apporder.NewLifecycle(repos.orders, validator, stock, ids, bus, apporder.Pricing{
		Shipping: cfg.Pricing.Shipping,
		Tax:      cfg.Pricing.Tax,
	}, tel)
	orders.SetPaymentPort(payments)
	payments.SetOrderPort(orders)

	appinventory.NewWorker(workerpresentation.NewSubscriber(bus, "inventory_worker", tel), tel).Start()
	apppayment.NewWorker(workerpresentation.NewSubscriber(bus, "payment_worker", tel), payments, tel).Start()

	bus.Start(ctx)

	sweeper := appinventory.NewSweeper(stock, cfg.Inventory.SweepInterval, tel.Logger())
	sweeper.Start(ctx)

	handler := httppresentation.NewHandler(httppresentation.Services{
		Orders:      orders,
		Payments:    payments,
		Stock:       stock,
		Cart:        validator,
		Catalog:     repos.catalog,
		CartHoldTTL: cfg.Inventory.CartHoldTTL,
		Metrics:     registry.Handler(),
	}, tel.Logger(), tel)

	server := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("storage", cfg.Storage.Driver),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}

	sweeper.Stop()
	gw.Wait()
	bus.Stop(shutdownCtx)
	if kafkaClose != nil {
		if err := kafkaClose(); err != nil {
			systemLogger.Warn("kafka_writer_close_error", observability.F("error", err))
		}
	}
	return nil
}

type repositories struct {
	catalog      domcatalog.Repository
	ledgers      dominv.LedgerRepository
	reservations dominv.ReservationRepository
	orders       domorder.Repository
	payments     dompayment.Repository
	close        func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger observability.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres, config.StorageSQLite:
		db, err := persistence.Open(persistence.Config{
			Driver:          cfg.Storage.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("storage_ready", observability.F("driver", cfg.Storage.Driver))
		return &repositories{
			catalog:      db.Catalog(),
			ledgers:      db.Ledgers(),
			reservations: db.Reservations(),
			orders:       db.Orders(),
			payments:     db.Payments(),
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("database_close_error", observability.F("error", err))
				}
			},
		}, nil

	case config.StorageMongo:
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		logger.Info("storage_ready", observability.F("driver", cfg.Storage.Driver))
		return &repositories{
			catalog:      store.Catalog(),
			ledgers:      store.Ledgers(),
			reservations: store.Reservations(),
			orders:       store.Orders(),
			payments:     store.Payments(),
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := store.Close(closeCtx); err != nil {
					logger.Warn("mongo_close_error", observability.F("error", err))
				}
			},
		}, nil

	default:
		logger.Info("storage_ready", observability.F("driver", config.StorageMemory))
		return &repositories{
			catalog:      memory.NewCatalogRepository(),
			ledgers:      memory.NewLedgerRepository(),
			reservations: memory.NewReservationRepository(),
			orders:       memory.NewOrderRepository(),
			payments:     memory.NewPaymentRepository(),
			close:        func() {},
		}, nil
	}
}

// openIdempotencyStore returns the gateway-event dedup store: Redis when
// enabled, otherwise process memory.
func openIdempotencyStore(ctx context.Context, cfg config.RedisConfig, logger observability.Logger) (apppayment.IdempotencyStore, func(), error) {
	if !cfg.Enabled {
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	store := idempotency.NewRedisStore(client, idempotencyKeyPrefix, cfg.IdempotencyTTL)
	logger.Info("redis_idempotency_enabled", observability.F("addr", cfg.Addr))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("redis_close_error", observability.F("error", err))
		}
	}, nil
}

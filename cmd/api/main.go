package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/app"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/db"
	"github.com/harvest-market/escrow/internal/events"
	apphttp "github.com/harvest-market/escrow/internal/http"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/http/handlers"
	"github.com/harvest-market/escrow/internal/middleware"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "escrow-api", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "escrow-api", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	stores := app.PostgresStores(pool)
	svc, err := app.NewServices(cfg, stores, publisher, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	// Handlers
	access := handlers.NewAccess(stores.Orders)
	wsHub := handlers.NewWSHub(cfg, subscriber, stores.Orders, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Error("ws hub not started", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				Code:      string(statusKind(code)),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})

	apphttp.SetupRouter(server, cfg, log, rdb, apphttp.Handlers{
		Auth:         handlers.NewAuthHandler(cfg, log),
		Wallet:       handlers.NewWalletHandler(svc.Wallets, svc.Settlement, access, log),
		Cancellation: handlers.NewCancellationHandler(svc.Cancellations, access, log),
		Preorder:     handlers.NewPreorderHandler(svc.Preorders, access, log),
		Compensation: handlers.NewCompensationHandler(svc.Compensations, access, log),
		Dispute:      handlers.NewDisputeHandler(svc.Disputes, access, log),
		Risk:         handlers.NewRiskHandler(svc.Risk, log),
		Meta:         handlers.NewMetaHandler(svc.RefundPolicy, svc.Compensations, log),
		Audit:        handlers.NewAuditHandler(stores.Audit, log),
		WSHub:        wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = server.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := server.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// statusKind labels errors raised by fiber itself, such as unknown routes.
func statusKind(status int) apperr.Kind {
	switch {
	case status == fiber.StatusNotFound:
		return apperr.KindNotFound
	case status == fiber.StatusConflict:
		return apperr.KindConflict
	case status < fiber.StatusInternalServerError:
		return apperr.KindValidation
	default:
		return apperr.KindInternal
	}
}

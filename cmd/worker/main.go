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

	"github.com/harvest-market/escrow/internal/app"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/db"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/jobs"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

const applyBatch = 100

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "escrow-worker", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "escrow-worker", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	publisher := events.NewRedisPublisher(rdb, log)
	svc, err := app.NewServices(cfg, app.PostgresStores(pool), publisher, log)
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	host, _ := os.Hostname()
	locker := jobs.NewRedisLocker(rdb, fmt.Sprintf("%s:%d", host, os.Getpid()))
	sched := jobs.NewScheduler(ctx, locker, cfg.Location, log)

	for _, job := range []jobs.Job{
		detectJob("detect-delay", cfg.DetectDelaySchedule, models.TriggerDelay, svc.Compensations, log),
		detectJob("detect-shortage", cfg.DetectShortageSchedule, models.TriggerShortage, svc.Compensations, log),
		releaseJob(cfg.ReleaseCheckSchedule, svc.Settlement, log),
	} {
		if err := sched.Add(job); err != nil {
			log.Fatal("failed to schedule job", zap.String("job", job.Name), zap.Error(err))
		}
	}
	sched.Start()
	log.Info("worker started", zap.String("timezone", cfg.Location.String()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: ":" + cfg.WorkerPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
	sched.Stop()
	cancel()
}

// detectJob scans active pre-orders for one trigger, then settles whatever
// the scan left approved.
func detectJob(name, spec string, trigger models.TriggerType, comps *services.CompensationService, log *zap.Logger) jobs.Job {
	return jobs.Job{
		Name:     name,
		Schedule: spec,
		Timeout:  15 * time.Minute,
		Run: func(ctx context.Context) error {
			report, err := comps.Detect(ctx, trigger)
			if err != nil {
				return err
			}
			applied, failed := comps.ApplyApproved(ctx, applyBatch)
			log.Info("compensation detection finished",
				zap.String("trigger", string(trigger)),
				zap.Int("scanned", report.Scanned),
				zap.Int("created", len(report.Created)),
				zap.Int("detect_failed", report.Failed),
				zap.Int("applied", applied),
				zap.Int("apply_failed", failed),
			)
			if report.Failed > 0 || failed > 0 {
				return fmt.Errorf("%d detections and %d applications failed", report.Failed, failed)
			}
			return nil
		},
	}
}

func releaseJob(spec string, settlement *services.SettlementService, log *zap.Logger) jobs.Job {
	return jobs.Job{
		Name:     "release-checks",
		Schedule: spec,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			outcomes, err := settlement.RunReleaseChecks(ctx, time.Now())
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, o := range outcomes {
				counts[o.Outcome]++
				if o.Error != "" {
					log.Warn("release check failed", zap.String("wallet_id", o.WalletID.String()), zap.String("error", o.Error))
				}
			}
			log.Info("release checks finished", zap.Int("wallets", len(outcomes)), zap.Any("outcomes", counts))
			return nil
		},
	}
}

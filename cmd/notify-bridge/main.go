package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/db"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

// notify-bridge drains the notify stream and posts each message to the
// customer notification service.

const sendAttempts = 3

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "escrow-notify-bridge", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	client := services.NewNotifyClient(cfg.NotifyInternalURL, log)

	log.Info("notify-bridge started", zap.String("target", cfg.NotifyInternalURL))

	err = subscriber.Subscribe(ctx, events.StreamNotify, func(event events.Event) {
		n, ok := services.NotificationFromEvent(event)
		if !ok {
			log.Debug("skipping non-notification event", zap.String("type", event.Type))
			return
		}
		forward(ctx, client, n, log)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forward(ctx context.Context, client *services.NotifyClient, n services.Notification, log *zap.Logger) {
	backoff := time.Second
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		err := client.Send(ctx, n)
		if err == nil {
			log.Info("notification forwarded", zap.String("recipient", n.Recipient), zap.String("title", n.Title))
			return
		}
		log.Warn("failed to forward notification", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/metrics"
	"go.uber.org/zap"
)

// LoggerMiddleware logs every request and feeds the HTTP metrics. Metrics
// are labelled by route pattern so ids do not explode cardinality.
func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// let the app error handler set the status before we read it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.ObserveHTTP(c.Method(), c.Route().Path, status, latency)

		log.Info("request",
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.IP()),
			zap.String("actor", GetEmail(c)),
		)

		return err
	}
}

package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/http/handlers"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Wallet       *handlers.WalletHandler
	Cancellation *handlers.CancellationHandler
	Preorder     *handlers.PreorderHandler
	Compensation *handlers.CompensationHandler
	Dispute      *handlers.DisputeHandler
	Risk         *handlers.RiskHandler
	Meta         *handlers.MetaHandler
	Audit        *handlers.AuditHandler
	WSHub        *handlers.WSHub
}

// SetupRouter mounts every route. rdb may be nil, which disables rate limiting.
func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Accept-Language, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api/v1")

	// Meta (public, no auth required)
	api.Get("/meta/refund-policy", h.Meta.GetRefundPolicy)
	api.Get("/meta/compensation-rules", h.Meta.GetCompensationRules)
	api.Get("/meta/cancel-reasons", h.Meta.GetCancelReasons)
	api.Get("/meta/dispute-types", h.Meta.GetDisputeTypes)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	if rdb != nil {
		protected.Use(middleware.RateLimitMiddleware(rdb, 120, time.Minute, log))
	}
	perm := middleware.RequirePermission

	protected.Get("/me", h.Auth.Me)
	protected.Post("/auth/refresh", h.Auth.Refresh)

	// Wallets
	protected.Get("/wallets/by-order/:orderId", perm(rbac.PermViewWallet), h.Wallet.GetByOrder)
	protected.Get("/wallets/:id/transactions", perm(rbac.PermViewWallet), h.Wallet.Transactions)
	protected.Get("/wallets/:id/reconcile", perm(rbac.PermReconcile), h.Wallet.Reconcile)
	protected.Post("/wallets/:id/deposit", perm(rbac.PermFundWallet), h.Wallet.Deposit)
	protected.Post("/wallets/:id/final-payment", perm(rbac.PermFundWallet), h.Wallet.FinalPayment)
	protected.Post("/wallets/:id/conditions", perm(rbac.PermSetReleaseCondition), h.Wallet.SetCondition)
	protected.Post("/wallets/:id/release", perm(rbac.PermReleaseFunds), h.Wallet.Release)

	// Lots & pre-orders
	protected.Post("/lots", perm(rbac.PermManageLots), h.Preorder.CreateLot)
	protected.Get("/lots/:id", h.Preorder.GetLot)
	protected.Post("/lots/:id/harvest", perm(rbac.PermManageLots), h.Preorder.RecordHarvest)
	protected.Post("/preorders/quote", h.Preorder.Quote)
	protected.Post("/preorders", perm(rbac.PermPlaceOrder), h.Preorder.Place)
	protected.Post("/orders/:id/items/:itemId/fulfilment", perm(rbac.PermManageLots), h.Preorder.RecordFulfilment)

	// Cancellations
	protected.Post("/orders/:id/cancel", perm(rbac.PermCancelOrder), h.Cancellation.Cancel)
	protected.Get("/orders/:id/cancellation/preview", perm(rbac.PermCancelOrder), h.Cancellation.Preview)
	protected.Get("/orders/:id/cancellation", perm(rbac.PermViewWallet), h.Cancellation.GetByOrder)
	protected.Post("/cancellations/:id/process-refund", perm(rbac.PermProcessRefund), h.Cancellation.ProcessRefund)

	// Compensations
	protected.Post("/compensations/detect", perm(rbac.PermDetectCompensation), h.Compensation.Detect)
	protected.Get("/compensations", perm(rbac.PermViewCompensation), h.Compensation.List)
	protected.Get("/compensations/:id", perm(rbac.PermViewCompensation), h.Compensation.Get)
	protected.Post("/compensations/:id/approve", perm(rbac.PermReviewCompensation), h.Compensation.Approve)
	protected.Post("/compensations/:id/reject", perm(rbac.PermReviewCompensation), h.Compensation.Reject)
	protected.Post("/compensations/:id/apply", perm(rbac.PermReviewCompensation), h.Compensation.Apply)

	// Disputes
	protected.Post("/disputes", perm(rbac.PermFileDispute), h.Dispute.Create)
	protected.Get("/disputes/:id", perm(rbac.PermViewDispute), h.Dispute.Get)
	protected.Post("/disputes/:id/status", perm(rbac.PermResolveDispute), h.Dispute.UpdateStatus)
	protected.Post("/disputes/:id/options", perm(rbac.PermProposeResolution), h.Dispute.AddOption)
	protected.Post("/disputes/:id/resolve", perm(rbac.PermResolveDispute), h.Dispute.Resolve)
	protected.Post("/disputes/:id/notes", perm(rbac.PermInternalNote), h.Dispute.AddNote)

	// Risk
	protected.Post("/risk/validate-order", perm(rbac.PermValidateOrder), h.Risk.ValidateOrder)
	protected.Get("/risk/:email", perm(rbac.PermViewRisk), h.Risk.GetProfile)
	protected.Post("/risk/:email/blacklist", perm(rbac.PermManageBlacklist), h.Risk.Blacklist)
	protected.Delete("/risk/:email/blacklist", perm(rbac.PermManageBlacklist), h.Risk.RemoveBlacklist)

	// Audit trail
	protected.Get("/audit", perm(rbac.PermViewAudit), h.Audit.Search)
	protected.Get("/audit/:entity/:id", perm(rbac.PermViewAudit), h.Audit.GetByEntity)

	// WebSocket
	if h.WSHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WSHub.HandleWS))
	}
}

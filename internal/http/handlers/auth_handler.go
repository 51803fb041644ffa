package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/auth"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"go.uber.org/zap"
)

// AuthHandler serves the identity of an already-authenticated caller.
// Tokens are minted by the storefront (or escrowctl token); this service
// only verifies and refreshes them.
type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// GET /me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return ok(c, dto.MeResponse{
		UserID: middleware.GetUserID(c).String(),
		Email:  middleware.GetEmail(c),
		Role:   string(middleware.GetRole(c)),
	})
}

// Refresh re-issues the caller's token with a fresh expiry.
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, middleware.GetUserID(c), middleware.GetEmail(c), middleware.GetRole(c), h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to refresh token", zap.Error(err))
		return abort(c, fiber.StatusInternalServerError, msgInternal)
	}
	return ok(c, fiber.Map{"token": token})
}

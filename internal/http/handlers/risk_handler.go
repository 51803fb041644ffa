package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

type RiskHandler struct {
	risk *services.RiskService
	log  *zap.Logger
}

func NewRiskHandler(risk *services.RiskService, log *zap.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, log: log}
}

// GET /risk/:email
func (h *RiskHandler) GetProfile(c *fiber.Ctx) error {
	p, err := h.risk.GetProfile(c.Context(), c.Params("email"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

// POST /risk/:email/blacklist
func (h *RiskHandler) Blacklist(c *fiber.Ctx) error {
	var req dto.BlacklistRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	p, err := h.risk.Blacklist(c.Context(), c.Params("email"), req.Reason, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

// DELETE /risk/:email/blacklist
func (h *RiskHandler) RemoveBlacklist(c *fiber.Ctx) error {
	p, err := h.risk.RemoveBlacklist(c.Context(), c.Params("email"), middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

// ValidateOrder runs the risk gate without placing anything. A failed
// check is a 200 with passed=false.
// POST /risk/validate-order
func (h *RiskHandler) ValidateOrder(c *fiber.Ctx) error {
	var req dto.ValidateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	check, err := h.risk.ValidateOrder(c.Context(), req.CustomerEmail, policy.OrderRequest{
		PreorderQuantity: req.PreorderQuantity,
		DepositPercent:   req.DepositPercent,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, check)
}

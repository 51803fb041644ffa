package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

type CancellationHandler struct {
	cancellations *services.CancellationService
	access        *Access
	log           *zap.Logger
}

func NewCancellationHandler(cancellations *services.CancellationService, access *Access, log *zap.Logger) *CancellationHandler {
	return &CancellationHandler{cancellations: cancellations, access: access, log: log}
}

func toReasons(raw []string) []models.CancelReason {
	out := make([]models.CancelReason, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, models.CancelReason(r))
		}
	}
	return out
}

// Cancel records the cancellation, restores inventory and settles the
// order status. The refund itself is issued by ProcessRefund.
// POST /orders/:id/cancel
func (h *CancellationHandler) Cancel(c *fiber.Ctx) error {
	orderID, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	var req dto.CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}

	rec, err := h.cancellations.RequestCancellation(c.Context(), services.CancelRequest{
		OrderID: orderID,
		Reasons: toReasons(req.Reasons),
		Note:    req.Note,
		Actor:   middleware.GetActor(c),
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: rec})
}

// Preview quotes the refund a cancellation would get right now.
// GET /orders/:id/cancellation/preview?reasons=changed_mind,other
func (h *CancellationHandler) Preview(c *fiber.Ctx) error {
	orderID, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}
	q, err := h.cancellations.Preview(c.Context(), orderID, toReasons(strings.Split(c.Query("reasons"), ",")))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, q)
}

// GET /orders/:id/cancellation
func (h *CancellationHandler) GetByOrder(c *fiber.Ctx) error {
	orderID, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}
	rec, err := h.cancellations.GetByOrder(c.Context(), orderID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rec)
}

// POST /cancellations/:id/process-refund
func (h *CancellationHandler) ProcessRefund(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	rec, err := h.cancellations.ProcessRefund(c.Context(), id, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rec)
}

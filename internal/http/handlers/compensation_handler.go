package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/rbac"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

const applyBatch = 100

type CompensationHandler struct {
	compensations *services.CompensationService
	access        *Access
	log           *zap.Logger
}

func NewCompensationHandler(compensations *services.CompensationService, access *Access, log *zap.Logger) *CompensationHandler {
	return &CompensationHandler{compensations: compensations, access: access, log: log}
}

// Detect runs one detector now and applies whatever is approved, the same
// as a scheduled worker run.
// POST /compensations/detect
func (h *CompensationHandler) Detect(c *fiber.Ctx) error {
	var req dto.DetectRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	report, err := h.compensations.Detect(c.Context(), models.TriggerType(req.Trigger))
	if err != nil {
		return fail(c, h.log, err)
	}
	applied, failed := h.compensations.ApplyApproved(c.Context(), applyBatch)
	return ok(c, fiber.Map{"report": report, "applied": applied, "apply_failed": failed})
}

// List filters by order_id for any party to the order; listing a whole
// status queue is for reviewers only.
// GET /compensations?order_id=...|status=pending
func (h *CompensationHandler) List(c *fiber.Ctx) error {
	if raw := c.Query("order_id"); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			return fail(c, h.log, apperr.Invalid("order_id", "must be a uuid"))
		}
		if _, err := h.access.Order(c, orderID); err != nil {
			return fail(c, h.log, err)
		}
		recs, err := h.compensations.ListByOrder(c.Context(), orderID)
		if err != nil {
			return fail(c, h.log, err)
		}
		return ok(c, recs)
	}

	if !rbac.HasPermission(middleware.GetRole(c), rbac.PermReviewCompensation) {
		return abort(c, fiber.StatusForbidden, msgForbidden)
	}
	status := models.CompensationStatus(c.Query("status", string(models.CompensationPending)))
	if _, known := models.ValidCompensationTransitions[status]; !known {
		return fail(c, h.log, apperr.Invalid("status", "unknown compensation status"))
	}
	recs, err := h.compensations.ListByStatus(c.Context(), status, c.QueryInt("limit", 100))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, recs)
}

// GET /compensations/:id
func (h *CompensationHandler) Get(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	rec, err := h.compensations.Get(c.Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	if _, err := h.access.Order(c, rec.OrderID); err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rec)
}

// POST /compensations/:id/approve
func (h *CompensationHandler) Approve(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	rec, err := h.compensations.Approve(c.Context(), id, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rec)
}

// POST /compensations/:id/reject
func (h *CompensationHandler) Reject(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	var req dto.RejectCompensationRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	rec, err := h.compensations.Reject(c.Context(), id, req.Reason, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rec)
}

// Apply returns pending=true without error when the record still awaits review.
// POST /compensations/:id/apply
func (h *CompensationHandler) Apply(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	res, err := h.compensations.Apply(c.Context(), id, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, res)
}

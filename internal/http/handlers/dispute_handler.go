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

type DisputeHandler struct {
	disputes *services.DisputeService
	access   *Access
	log      *zap.Logger
}

func NewDisputeHandler(disputes *services.DisputeService, access *Access, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, access: access, log: log}
}

// ticket loads :id, which may be a uuid or a DSP- ticket number.
func (h *DisputeHandler) ticket(c *fiber.Ctx) (*models.DisputeTicket, error) {
	raw := c.Params("id")
	var (
		t   *models.DisputeTicket
		err error
	)
	if id, perr := uuid.Parse(raw); perr == nil {
		t, err = h.disputes.Get(c.Context(), id)
	} else {
		t, err = h.disputes.GetByNumber(c.Context(), raw)
	}
	if err != nil {
		return nil, err
	}
	if _, err := h.access.Order(c, t.OrderID); err != nil {
		return nil, err
	}
	return t, nil
}

// view hides staff notes from callers who cannot write them.
func view(c *fiber.Ctx, t *models.DisputeTicket) *models.DisputeTicket {
	if rbac.HasPermission(middleware.GetRole(c), rbac.PermInternalNote) {
		return t
	}
	cp := *t
	cp.InternalNotes = nil
	return &cp
}

// POST /disputes
func (h *DisputeHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fail(c, h.log, apperr.Invalid("order_id", "must be a uuid"))
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}
	t, err := h.disputes.Create(c.Context(), services.CreateDisputeInput{
		OrderID:             orderID,
		DisputeType:         models.DisputeType(req.DisputeType),
		CustomerDescription: req.Description,
		EvidenceURLs:        req.EvidenceURLs,
		Actor:               middleware.GetActor(c),
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: view(c, t)})
}

// GET /disputes/:id
func (h *DisputeHandler) Get(c *fiber.Ctx) error {
	t, err := h.ticket(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, view(c, t))
}

// POST /disputes/:id/status
func (h *DisputeHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.DisputeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	t, err := h.ticket(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	t, err = h.disputes.UpdateStatus(c.Context(), t.ID, models.DisputeStatus(req.Status), req.Note, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, view(c, t))
}

// POST /disputes/:id/options
func (h *DisputeHandler) AddOption(c *fiber.Ctx) error {
	var req dto.ResolutionOptionRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	t, err := h.ticket(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	t, err = h.disputes.AddResolutionOption(c.Context(), t.ID, services.ResolutionOptionInput{
		Type:        models.ResolutionType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
	}, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, view(c, t))
}

// POST /disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		return fail(c, h.log, apperr.Invalid("option_id", "must be a uuid"))
	}
	t, err := h.ticket(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	t, err = h.disputes.Resolve(c.Context(), t.ID, optionID, req.Note, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, view(c, t))
}

// POST /disputes/:id/notes
func (h *DisputeHandler) AddNote(c *fiber.Ctx) error {
	var req dto.InternalNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	t, err := h.ticket(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	t, err = h.disputes.AddInternalNote(c.Context(), t.ID, req.Note, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, t)
}

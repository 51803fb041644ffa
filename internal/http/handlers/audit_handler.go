package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/models"
	"go.uber.org/zap"
)

type AuditReader interface {
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
	Search(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error)
}

type AuditHandler struct {
	audit AuditReader
	log   *zap.Logger
}

func NewAuditHandler(audit AuditReader, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: log}
}

// GET /audit/:entity/:id?limit=&offset=
func (h *AuditHandler) GetByEntity(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	logs, err := h.audit.GetByEntity(c.Context(), c.Params("entity"), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, logs)
}

// GET /audit?actor=&action=&entity_type=&since=&limit=&offset=
func (h *AuditHandler) Search(c *fiber.Ctx) error {
	q := models.AuditQuery{
		ActorEmail: c.Query("actor"),
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return abort(c, fiber.StatusBadRequest, msgInvalidSince)
		}
		q.Since = since
	}
	logs, err := h.audit.Search(c.Context(), q)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, logs)
}

package handlers

import (
	"strconv"
	"strings"
	"time"

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

type PreorderHandler struct {
	preorders *services.PreorderService
	access    *Access
	log       *zap.Logger
}

func NewPreorderHandler(preorders *services.PreorderService, access *Access, log *zap.Logger) *PreorderHandler {
	return &PreorderHandler{preorders: preorders, access: access, log: log}
}

// POST /lots
func (h *PreorderHandler) CreateLot(c *fiber.Ctx) error {
	var req dto.CreateLotRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	curve := make([]models.PricePoint, 0, len(req.PriceCurve))
	for _, p := range req.PriceCurve {
		curve = append(curve, models.PricePoint{MinSold: p.MinSold, UnitPrice: p.UnitPrice})
	}
	lot, err := h.preorders.CreateLot(c.Context(), services.CreateLotInput{
		ProductName:          req.ProductName,
		EstimatedHarvestDate: req.EstimatedHarvestDate,
		BasePrice:            req.BasePrice,
		PriceCurve:           curve,
		DepositPercent:       req.DepositPercent,
		AvailableQuantity:    req.AvailableQuantity,
	}, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: lot})
}

// GET /lots/:id
func (h *PreorderHandler) GetLot(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	lot, err := h.preorders.GetLot(c.Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, lot)
}

// RecordHarvest stamps the lot and confirms harvest on the orders it completes.
// POST /lots/:id/harvest
func (h *PreorderHandler) RecordHarvest(c *fiber.Ctx) error {
	id, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	var req dto.RecordHarvestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return abort(c, fiber.StatusBadRequest, msgInvalidBody)
		}
	}
	at := time.Now()
	if req.HarvestedAt != nil {
		at = *req.HarvestedAt
	}
	confirmed, err := h.preorders.RecordHarvest(c.Context(), id, at, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, fiber.Map{"lot_id": id, "harvested_at": at, "orders_confirmed": confirmed})
}

// POST /orders/:id/items/:itemId/fulfilment
func (h *PreorderHandler) RecordFulfilment(c *fiber.Ctx) error {
	orderID, valid := parseID(c, "id")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	itemID, valid := parseID(c, "itemId")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	var req dto.RecordFulfilmentRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}
	if err := h.preorders.RecordFulfilment(c.Context(), orderID, itemID, req.FulfilledQuantity, middleware.GetActor(c)); err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, nil)
}

// POST /preorders/quote
func (h *PreorderHandler) Quote(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	lotID, err := uuid.Parse(req.LotID)
	if err != nil {
		return fail(c, h.log, apperr.Invalid("lot_id", "must be a uuid"))
	}
	q, err := h.preorders.Quote(c.Context(), lotID, req.Quantity, req.DepositPercent)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, q)
}

// Place creates the order and its wallet. Customers always order for
// themselves; only admins may place on behalf of another email.
// POST /preorders
func (h *PreorderHandler) Place(c *fiber.Ctx) error {
	var req dto.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	customer := middleware.GetEmail(c)
	if middleware.GetRole(c) == rbac.RoleAdmin && strings.TrimSpace(req.CustomerEmail) != "" {
		customer = req.CustomerEmail
	}

	v := &apperr.ValidationError{}
	items := make([]services.PlaceItem, 0, len(req.Items))
	for i, it := range req.Items {
		item := services.PlaceItem{ProductName: it.ProductName, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		if it.LotID != nil {
			id, err := uuid.Parse(*it.LotID)
			if err != nil {
				v.Add(itemField(i, "lot_id"), "must be a uuid")
				continue
			}
			item.LotID = &id
		}
		items = append(items, item)
	}
	if err := v.OrNil(); err != nil {
		return fail(c, h.log, err)
	}

	res, err := h.preorders.Place(c.Context(), services.PlaceOrderInput{
		CustomerEmail:     customer,
		SellerEmail:       req.SellerEmail,
		Items:             items,
		DepositPercent:    req.DepositPercent,
		DeviceFingerprint: req.DeviceFingerprint,
		ShippingAddress:   req.ShippingAddress,
		Actor:             middleware.GetActor(c),
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: res})
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}

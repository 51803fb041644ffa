package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

type MetaHandler struct {
	refundPolicy  policy.RefundPolicy
	compensations *services.CompensationService
	log           *zap.Logger
}

func NewMetaHandler(refundPolicy policy.RefundPolicy, compensations *services.CompensationService, log *zap.Logger) *MetaHandler {
	return &MetaHandler{refundPolicy: refundPolicy, compensations: compensations, log: log}
}

// GetRefundPolicy describes the refund tiers in the caller's language.
// With ?amount=&days= it also quotes an example.
// GET /meta/refund-policy
func (h *MetaHandler) GetRefundPolicy(c *fiber.Ctx) error {
	p := printer(c)
	lang := requestLang(c)

	resp := dto.RefundPolicyResponse{
		FreeCancelDays:   h.refundPolicy.FreeCancelDays,
		CancelFeePercent: h.refundPolicy.CancelFeePercent,
	}
	for _, t := range h.refundPolicy.Tiers() {
		var desc string
		switch {
		case t.Tier == models.TierSellerCancel:
			desc = p.Sprintf(msgTierSeller, t.RefundPercent)
		case t.Tier == models.Tier4:
			desc = p.Sprintf(msgTierLast, t.RefundPercent)
		default:
			desc = p.Sprintf(msgTierFrom, t.MinDays, t.RefundPercent)
		}
		resp.Tiers = append(resp.Tiers, dto.RefundTier{Tier: string(t.Tier), RefundPercent: t.RefundPercent, Description: desc})
	}

	if c.Query("amount") != "" {
		amount := int64(c.QueryInt("amount"))
		if amount < 0 {
			return fail(c, h.log, apperr.Invalid("amount", "must not be negative"))
		}
		days := c.QueryInt("days")
		reason := models.CancelReason(c.Query("reason", string(models.CancelChangedMind)))
		if !models.IsValidCancelReason(reason) {
			return fail(c, h.log, apperr.Invalid("reason", "unknown cancellation reason"))
		}
		q := policy.CalculatePolicyRefund(amount, h.refundPolicy, days, reason)
		resp.Example = &dto.RefundExample{
			DaysBeforeHarvest: days,
			Reason:            string(reason),
			Tier:              string(q.Tier),
			Refund:            dto.AmountView{Amount: q.RefundAmount, Display: money.FormatVND(q.RefundAmount, lang)},
			Penalty:           dto.AmountView{Amount: q.PenaltyAmount, Display: money.FormatVND(q.PenaltyAmount, lang)},
		}
	}
	return ok(c, resp)
}

// GET /meta/compensation-rules
func (h *MetaHandler) GetCompensationRules(c *fiber.Ctx) error {
	return ok(c, h.compensations.Rules())
}

// GET /meta/cancel-reasons
func (h *MetaHandler) GetCancelReasons(c *fiber.Ctx) error {
	return ok(c, models.AllCancelReasons)
}

// GET /meta/dispute-types
func (h *MetaHandler) GetDisputeTypes(c *fiber.Ctx) error {
	return ok(c, models.AllDisputeTypes)
}

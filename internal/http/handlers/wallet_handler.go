package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/http/dto"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/rbac"
	"github.com/harvest-market/escrow/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	wallets    *services.WalletService
	settlement *services.SettlementService
	access     *Access
	log        *zap.Logger
}

func NewWalletHandler(wallets *services.WalletService, settlement *services.SettlementService, access *Access, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, settlement: settlement, access: access, log: log}
}

type holdFunc func(ctx context.Context, walletID uuid.UUID, amount int64, paymentRef string, actor models.Actor) (*models.Wallet, error)

// wallet loads the :id wallet after checking the caller may see its order.
func (h *WalletHandler) wallet(c *fiber.Ctx) (*models.Wallet, error) {
	id, valid := parseID(c, "id")
	if !valid {
		return nil, errInvalidID
	}
	w, err := h.wallets.GetWallet(c.Context(), id)
	if err != nil {
		return nil, err
	}
	if _, err := h.access.Order(c, w.OrderID); err != nil {
		return nil, err
	}
	return w, nil
}

// GetByOrder returns the escrow wallet of an order.
// GET /wallets/by-order/:orderId
func (h *WalletHandler) GetByOrder(c *fiber.Ctx) error {
	orderID, valid := parseID(c, "orderId")
	if !valid {
		return abort(c, fiber.StatusBadRequest, msgInvalidID)
	}
	if _, err := h.access.Order(c, orderID); err != nil {
		return fail(c, h.log, err)
	}
	w, err := h.wallets.GetWalletByOrder(c.Context(), orderID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, w)
}

// GET /wallets/:id/transactions
func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	w, err := h.wallet(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	txs, err := h.wallets.ListTransactions(c.Context(), w.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, txs)
}

// GET /wallets/:id/reconcile
func (h *WalletHandler) Reconcile(c *fiber.Ctx) error {
	w, err := h.wallet(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	rec, err := h.wallets.Reconcile(c.Context(), w.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	if !rec.Consistent {
		h.log.Error("ledger inconsistent", zap.String("wallet_id", w.ID.String()), zap.Strings("problems", rec.Problems))
	}
	return ok(c, rec)
}

// Deposit records the gateway-confirmed deposit.
// POST /wallets/:id/deposit
func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	return h.hold(c, h.wallets.HoldDeposit)
}

// POST /wallets/:id/final-payment
func (h *WalletHandler) FinalPayment(c *fiber.Ctx) error {
	return h.hold(c, h.wallets.HoldFinalPayment)
}

func (h *WalletHandler) hold(c *fiber.Ctx, op holdFunc) error {
	var req dto.HoldPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	w, err := h.wallet(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	w, err = op(c.Context(), w.ID, req.Amount, req.PaymentRef, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, w)
}

// SetCondition flips one release gate. Delivery and acceptance go through
// settlement so the order is stamped as well.
// POST /wallets/:id/conditions
func (h *WalletHandler) SetCondition(c *fiber.Ctx) error {
	var req dto.SetConditionRequest
	if err := c.BodyParser(&req); err != nil {
		return abort(c, fiber.StatusBadRequest, msgInvalidBody)
	}
	cond := models.ReleaseCondition(req.Condition)
	if !models.IsValidReleaseCondition(cond) {
		return abort(c, fiber.StatusUnprocessableEntity, msgUnknownCond)
	}
	if !rbac.CanSetCondition(middleware.GetRole(c), cond) {
		return abort(c, fiber.StatusForbidden, msgReleaseDenied)
	}
	w, err := h.wallet(c)
	if err != nil {
		return fail(c, h.log, err)
	}

	actor := middleware.GetActor(c)
	switch {
	case cond == models.ConditionDeliveryConfirmed && req.Value:
		w, err = h.settlement.ConfirmDelivery(c.Context(), w.OrderID, actor)
	case cond == models.ConditionCustomerAccepted && req.Value:
		w, err = h.settlement.AcceptDelivery(c.Context(), w.OrderID, actor)
	default:
		w, err = h.wallets.UpdateReleaseCondition(c.Context(), w.ID, cond, req.Value, actor)
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, w)
}

// Release pays out the seller when every gate is set. An unmet gate is a
// normal response with released=false.
// POST /wallets/:id/release
func (h *WalletHandler) Release(c *fiber.Ctx) error {
	w, err := h.wallet(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	res, err := h.settlement.Release(c.Context(), w.ID, middleware.GetActor(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, res)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
	"github.com/harvest-market/escrow/internal/policy"
	"go.uber.org/zap"
)

// WalletService is the only writer of wallets and ledger transactions.
// Every mutation is one read-compute-write under the wallet's lock and is
// committed conditionally on the wallet version.
type WalletService struct {
	wallets WalletStore
	rec     recorder
	locks   *keyedMutex
	log     *zap.Logger
	now     func() time.Time
}

func NewWalletService(wallets WalletStore, audit AuditStore, publisher events.Publisher, log *zap.Logger) *WalletService {
	return &WalletService{
		wallets: wallets,
		rec:     recorder{audit: audit, publisher: publisher, log: log},
		locks:   newKeyedMutex(),
		log:     log,
		now:     time.Now,
	}
}

// RefundRequest describes one refund. A non-empty Reference makes the call
// idempotent: a second request with the same reference returns the first
// transaction instead of moving money again.
type RefundRequest struct {
	WalletID  uuid.UUID
	Amount    int64
	Type      models.RefundType
	Reason    string
	Reference string
	Actor     models.Actor
}

var (
	errNotReady       = errors.New("release conditions not met")
	errAlreadySettled = errors.New("wallet already released")
)

func (s *WalletService) OpenWallet(ctx context.Context, orderID uuid.UUID, customerEmail string) (*models.Wallet, error) {
	w := &models.Wallet{
		OrderID:       orderID,
		CustomerEmail: customerEmail,
		Status:        models.WalletPendingDeposit,
		// no dispute exists yet, so that gate starts open
		ReleaseConditions: models.ReleaseConditions{DisputeResolved: true},
	}
	if err := s.wallets.CreateWallet(ctx, w); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return s.wallets.GetWalletByOrder(ctx, orderID)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	s.rec.auditLog(ctx, models.SystemActor, "wallet_opened", "wallet", w.ID, map[string]any{"order_id": orderID.String()})
	return w, nil
}

func (s *WalletService) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetWallet(ctx, id)
}

func (s *WalletService) GetWalletByOrder(ctx context.Context, orderID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetWalletByOrder(ctx, orderID)
}

func (s *WalletService) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	if _, err := s.wallets.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.wallets.ListTransactions(ctx, walletID)
}

// mutate runs fn against the latest wallet and commits the result. A lost
// version race re-reads and re-validates from scratch.
func (s *WalletService) mutate(ctx context.Context, walletID uuid.UUID, fn func(w *models.Wallet) ([]models.Transaction, error)) (*models.Wallet, []models.Transaction, error) {
	unlock := s.locks.Lock(walletID)
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		w, err := s.wallets.GetWallet(ctx, walletID)
		if err != nil {
			return nil, nil, err
		}
		txs, err := fn(w)
		if err != nil {
			return w, nil, err
		}
		err = s.wallets.SaveWallet(ctx, w, txs)
		if errors.Is(err, apperr.ErrConcurrentUpdate) {
			metrics.RecordLedgerConflict()
			s.log.Debug("wallet version conflict, retrying", zap.String("wallet_id", walletID.String()), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for _, tx := range txs {
			metrics.RecordLedgerEntry(string(tx.Type), tx.Amount)
		}
		return w, txs, nil
	}
	return nil, nil, fmt.Errorf("wallet %s: %w", walletID, apperr.ErrConcurrentUpdate)
}

// entry appends a ledger line for magnitude units of txType and moves the
// wallet's running balance. balance_after == balance_before + amount.
func entry(w *models.Wallet, txType models.TransactionType, magnitude int64, actor models.Actor, reason, reference string) models.Transaction {
	amount := txType.Sign() * magnitude
	tx := models.Transaction{
		WalletID:      w.ID,
		OrderID:       w.OrderID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: w.TotalHeld,
		BalanceAfter:  w.TotalHeld + amount,
		Status:        models.TransactionStatusCompleted,
		InitiatedBy:   actorLabel(actor),
		Reason:        reason,
		Reference:     reference,
	}
	w.TotalHeld = tx.BalanceAfter
	return tx
}

func transitionWallet(w *models.Wallet, to models.WalletStatus, operation string) error {
	if !models.IsValidWalletTransition(w.Status, to) {
		return &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: operation}
	}
	w.Status = to
	return nil
}

func (s *WalletService) changed(ctx context.Context, w *models.Wallet, from models.WalletStatus, action string, actor models.Actor, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = string(from)
	meta["new_status"] = string(w.Status)
	meta["total_held"] = w.TotalHeld
	s.rec.auditLog(ctx, actor, action, "wallet", w.ID, meta)
	s.rec.publish(ctx, events.EventWalletChanged, map[string]any{
		"wallet_id":  w.ID.String(),
		"order_id":   w.OrderID.String(),
		"action":     action,
		"old_status": string(from),
		"new_status": string(w.Status),
		"total_held": w.TotalHeld,
	})
}

// HoldDeposit books the customer's deposit into a pending wallet.
func (s *WalletService) HoldDeposit(ctx context.Context, walletID uuid.UUID, amount int64, paymentRef string, actor models.Actor) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, apperr.Invalid("amount", "must be positive")
	}
	var from models.WalletStatus
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if w.Status != models.WalletPendingDeposit {
			return nil, &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: "hold deposit"}
		}
		tx := entry(w, models.TxDepositIn, amount, actor, "deposit received", paymentRef)
		w.DepositHeld += amount
		return []models.Transaction{tx}, transitionWallet(w, models.WalletDepositHeld, "hold deposit")
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, w, from, "deposit_held", actor, map[string]any{"amount": amount, "payment_ref": paymentRef})
	return w, nil
}

// HoldFinalPayment books the remaining payment once the deposit is held.
func (s *WalletService) HoldFinalPayment(ctx context.Context, walletID uuid.UUID, amount int64, paymentRef string, actor models.Actor) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, apperr.Invalid("amount", "must be positive")
	}
	var from models.WalletStatus
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if w.Status != models.WalletDepositHeld {
			return nil, &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: "hold final payment"}
		}
		tx := entry(w, models.TxFinalPaymentIn, amount, actor, "final payment received", paymentRef)
		w.FinalPaymentHeld += amount
		return []models.Transaction{tx}, transitionWallet(w, models.WalletFullyHeld, "hold final payment")
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, w, from, "final_payment_held", actor, map[string]any{"amount": amount, "payment_ref": paymentRef})
	return w, nil
}

// Refund returns money to the customer. A full refund must cover the whole
// held balance.
func (s *WalletService) Refund(ctx context.Context, req RefundRequest) (*models.Wallet, *models.Transaction, error) {
	switch req.Type {
	case models.RefundFull, models.RefundPartial:
	default:
		return nil, nil, apperr.Invalid("refund_type", "must be full or partial")
	}

	if req.Reference != "" {
		if w, tx, ok := s.existingRefund(ctx, req); ok {
			return w, tx, nil
		}
	}

	var from models.WalletStatus
	w, txs, err := s.mutate(ctx, req.WalletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if err := policy.CanProcessRefund(w); err != nil {
			return nil, err
		}
		if err := policy.ValidateRefundAmount(req.Amount, w.TotalHeld); err != nil {
			return nil, err
		}
		txType := models.TxPartialRefundOut
		if req.Type == models.RefundFull {
			if req.Amount != w.TotalHeld {
				return nil, &apperr.InvalidAmountError{Amount: req.Amount, Limit: w.TotalHeld, Reason: "full refund must equal total held"}
			}
			txType = models.TxRefundOut
		}
		tx := entry(w, txType, req.Amount, req.Actor, req.Reason, req.Reference)
		w.RefundedAmount += req.Amount
		next := models.WalletPartialRefunded
		if w.TotalHeld == 0 {
			next = models.WalletRefunded
		}
		return []models.Transaction{tx}, transitionWallet(w, next, "refund")
	})
	if errors.Is(err, apperr.ErrDuplicate) && req.Reference != "" {
		if w, tx, ok := s.existingRefund(ctx, req); ok {
			return w, tx, nil
		}
	}
	if err != nil {
		return nil, nil, err
	}
	tx := txs[0]
	s.changed(ctx, w, from, "refunded", req.Actor, map[string]any{
		"amount": req.Amount, "refund_type": string(req.Type), "reason": req.Reason, "reference": req.Reference,
	})
	return w, &tx, nil
}

func (s *WalletService) existingRefund(ctx context.Context, req RefundRequest) (*models.Wallet, *models.Transaction, bool) {
	tx, err := s.wallets.FindTransactionByReference(ctx, req.WalletID, req.Reference)
	if err != nil {
		return nil, nil, false
	}
	w, err := s.wallets.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, nil, false
	}
	s.log.Info("refund already booked", zap.String("wallet_id", req.WalletID.String()), zap.String("reference", req.Reference))
	return w, tx, true
}

// ReleaseToSeller pays out the held balance minus commission. Unmet release
// conditions produce Released == false, not an error.
func (s *WalletService) ReleaseToSeller(ctx context.Context, walletID uuid.UUID, commissionRate float64, actor models.Actor) (*models.ReleaseResult, error) {
	if commissionRate < 0 || commissionRate >= 100 {
		return nil, apperr.Invalid("commission_rate", "must be in [0, 100)")
	}
	var (
		from               models.WalletStatus
		unmet              []models.ReleaseCondition
		commission, payout int64
	)
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if w.Status.IsLocked() {
			return nil, &apperr.WalletLockedError{WalletID: w.ID.String(), Status: string(w.Status)}
		}
		if !models.IsValidWalletTransition(w.Status, models.WalletReleasedToSeller) || w.TotalHeld <= 0 {
			return nil, &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: "release to seller"}
		}
		if unmet = w.ReleaseConditions.Unmet(); len(unmet) > 0 {
			return nil, errNotReady
		}

		total := w.TotalHeld
		commission = money.PercentFloat(total, commissionRate)
		payout = total - commission
		txs := []models.Transaction{
			entry(w, models.TxCommissionDeduct, commission, actor, fmt.Sprintf("platform commission %.2f%%", commissionRate), ""),
			entry(w, models.TxSellerPayout, payout, actor, "seller payout", ""),
		}
		now := s.now()
		w.PlatformCommission = commission
		w.SellerPayoutAmount = payout
		w.ReleasedAt = &now
		return txs, transitionWallet(w, models.WalletReleasedToSeller, "release to seller")
	})
	if errors.Is(err, errNotReady) {
		metrics.RecordRelease("not_ready")
		return &models.ReleaseResult{Released: false, UnmetConditions: unmet, Reason: errNotReady.Error(), Wallet: w}, nil
	}
	if err != nil {
		metrics.RecordRelease("error")
		return nil, err
	}

	metrics.RecordRelease("released")
	s.changed(ctx, w, from, "released_to_seller", actor, map[string]any{"commission": commission, "payout": payout})
	s.rec.publish(ctx, events.EventWalletReleased, map[string]any{
		"wallet_id": w.ID.String(), "order_id": w.OrderID.String(), "commission": commission, "payout": payout,
	})
	return &models.ReleaseResult{Released: true, Commission: commission, Payout: payout, Wallet: w}, nil
}

// SettleForfeit pays out what a cancelled order left in escrow, minus
// commission. It skips the release gates because the order will never be
// delivered. A wallet that is already released reports Released == false.
func (s *WalletService) SettleForfeit(ctx context.Context, walletID uuid.UUID, commissionRate float64, reference string, actor models.Actor) (*models.ReleaseResult, error) {
	if commissionRate < 0 || commissionRate >= 100 {
		return nil, apperr.Invalid("commission_rate", "must be in [0, 100)")
	}
	var (
		from               models.WalletStatus
		commission, payout int64
	)
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if w.Status == models.WalletReleasedToSeller {
			return nil, errAlreadySettled
		}
		if !w.Status.CanSettleForfeit() || w.TotalHeld <= 0 {
			return nil, &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: "settle forfeit"}
		}
		total := w.TotalHeld
		commission = money.PercentFloat(total, commissionRate)
		payout = total - commission
		txs := []models.Transaction{
			entry(w, models.TxCommissionDeduct, commission, actor, fmt.Sprintf("platform commission %.2f%% on cancellation penalty", commissionRate), reference+":commission"),
			entry(w, models.TxSellerPayout, payout, actor, "cancellation penalty payout", reference+":payout"),
		}
		now := s.now()
		w.PlatformCommission = commission
		w.SellerPayoutAmount = payout
		w.ReleasedAt = &now
		w.Status = models.WalletReleasedToSeller
		return txs, nil
	})
	if errors.Is(err, errAlreadySettled) {
		return &models.ReleaseResult{Released: false, Reason: errAlreadySettled.Error(), Wallet: w}, nil
	}
	if err != nil {
		metrics.RecordRelease("error")
		return nil, err
	}

	metrics.RecordRelease("forfeit")
	s.changed(ctx, w, from, "forfeit_settled", actor, map[string]any{"commission": commission, "payout": payout, "reference": reference})
	s.rec.publish(ctx, events.EventWalletReleased, map[string]any{
		"wallet_id": w.ID.String(), "order_id": w.OrderID.String(), "commission": commission, "payout": payout,
	})
	return &models.ReleaseResult{Released: true, Commission: commission, Payout: payout, Wallet: w}, nil
}

// UpdateReleaseCondition flips one release gate. No transaction is written.
func (s *WalletService) UpdateReleaseCondition(ctx context.Context, walletID uuid.UUID, cond models.ReleaseCondition, value bool, actor models.Actor) (*models.Wallet, error) {
	if !models.IsValidReleaseCondition(cond) {
		return nil, apperr.Invalidf("condition", "unknown release condition %q", cond)
	}
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		if w.Status.IsLocked() {
			return nil, &apperr.WalletLockedError{WalletID: w.ID.String(), Status: string(w.Status)}
		}
		w.ReleaseConditions.Set(cond, value)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.auditLog(ctx, actor, "release_condition_updated", "wallet", w.ID, map[string]any{"condition": string(cond), "value": value})
	return w, nil
}

// Cancel closes a wallet that never received money.
func (s *WalletService) Cancel(ctx context.Context, walletID uuid.UUID, actor models.Actor) (*models.Wallet, error) {
	var from models.WalletStatus
	w, _, err := s.mutate(ctx, walletID, func(w *models.Wallet) ([]models.Transaction, error) {
		from = w.Status
		if w.TotalHeld != 0 {
			return nil, &apperr.InvalidStateError{Entity: "wallet", ID: w.ID.String(), Status: string(w.Status), Operation: "cancel a funded wallet"}
		}
		return nil, transitionWallet(w, models.WalletCancelled, "cancel")
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, w, from, "wallet_cancelled", actor, nil)
	return w, nil
}

// Reconcile replays the ledger and compares it with the wallet summary.
func (s *WalletService) Reconcile(ctx context.Context, walletID uuid.UUID) (*models.Reconciliation, error) {
	w, err := s.wallets.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	txs, err := s.wallets.ListTransactions(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return ReconcileLedger(w, txs), nil
}

// ReconcileLedger checks the ledger invariants of one wallet.
func ReconcileLedger(w *models.Wallet, txs []models.Transaction) *models.Reconciliation {
	r := &models.Reconciliation{WalletID: w.ID, TotalHeld: w.TotalHeld, Entries: len(txs)}
	var running, in, refunded, commission, payout int64
	for _, tx := range txs {
		if tx.BalanceAfter != tx.BalanceBefore+tx.Amount {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d: balance_after %d != balance_before %d + amount %d", tx.Sequence, tx.BalanceAfter, tx.BalanceBefore, tx.Amount))
		}
		if tx.BalanceBefore != running {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d: balance_before %d breaks chain (expected %d)", tx.Sequence, tx.BalanceBefore, running))
		}
		if sign := tx.Type.Sign(); sign != 0 && tx.Amount*sign < 0 {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d: %s has wrong sign", tx.Sequence, tx.Type))
		}
		running = tx.BalanceBefore + tx.Amount
		r.LedgerSum += tx.Amount

		switch tx.Type {
		case models.TxDepositIn, models.TxFinalPaymentIn:
			in += tx.Amount
		case models.TxRefundOut, models.TxPartialRefundOut:
			refunded -= tx.Amount
		case models.TxCommissionDeduct:
			commission -= tx.Amount
		case models.TxSellerPayout:
			payout -= tx.Amount
		}
	}
	if r.LedgerSum != w.TotalHeld {
		r.Problems = append(r.Problems, fmt.Sprintf("ledger sum %d != total_held %d", r.LedgerSum, w.TotalHeld))
	}
	if in != w.DepositHeld+w.FinalPaymentHeld {
		r.Problems = append(r.Problems, fmt.Sprintf("money in %d != deposit_held + final_payment_held %d", in, w.DepositHeld+w.FinalPaymentHeld))
	}
	if refunded != w.RefundedAmount {
		r.Problems = append(r.Problems, fmt.Sprintf("refunds %d != refunded_amount %d", refunded, w.RefundedAmount))
	}
	if commission != w.PlatformCommission || payout != w.SellerPayoutAmount {
		r.Problems = append(r.Problems, "settlement entries disagree with commission/payout summary")
	}
	r.Consistent = len(r.Problems) == 0
	return r
}

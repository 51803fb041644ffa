package cli

import (
	"fmt"

	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

var (
	quoteAmount int64
	quoteDays   int
	quoteReason string
	quoteLang   string
)

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().Int64Var(&quoteAmount, "amount", 0, "Amount paid so far, in VND")
	quoteCmd.Flags().IntVar(&quoteDays, "days", 0, "Days left before the estimated harvest")
	quoteCmd.Flags().StringVar(&quoteReason, "reason", string(models.CancelChangedMind), "Cancellation reason")
	quoteCmd.Flags().StringVar(&quoteLang, "lang", "vi", "Output language (vi or en)")
	_ = quoteCmd.MarkFlagRequired("amount")
}

var quoteCmd = &cobra.Command{
	Use:   "quote-refund",
	Short: "Price a cancellation under the configured refund policy",
	Long:  "Applies FREE_CANCEL_DAYS and CANCEL_FEE_PERCENT from the environment. No database access.",
	Args:  cobra.NoArgs,
	RunE:  runQuote,
}

func runQuote(cmd *cobra.Command, _ []string) error {
	if quoteAmount <= 0 {
		return fmt.Errorf("--amount must be positive")
	}
	reason := models.CancelReason(quoteReason)
	if !models.IsValidCancelReason(reason) {
		return fmt.Errorf("unknown reason %q", quoteReason)
	}
	lang, err := language.Parse(quoteLang)
	if err != nil {
		return fmt.Errorf("bad --lang: %w", err)
	}

	cfg := config.Load()
	p := policy.RefundPolicy{FreeCancelDays: cfg.FreeCancelDays, CancelFeePercent: cfg.CancelFeePercent}
	q := policy.CalculatePolicyRefund(quoteAmount, p, quoteDays, reason)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tier:    %s\n", q.Tier)
	fmt.Fprintf(out, "refund:  %s (%d%%)\n", money.FormatVND(q.RefundAmount, lang), q.RefundPercentage)
	fmt.Fprintf(out, "penalty: %s\n", money.FormatVND(q.PenaltyAmount, lang))
	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/db"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/spf13/cobra"
)

var (
	detectTrigger string
	applyLimit    int
)

func init() {
	rootCmd.AddCommand(reconcileCmd, detectCmd, releaseCmd, migrateCmd)
	detectCmd.Flags().StringVar(&detectTrigger, "trigger", string(models.TriggerDelay), "delay_threshold or shortage_threshold")
	detectCmd.Flags().IntVar(&applyLimit, "apply-limit", 100, "Approved records to apply after detection (0 skips)")
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <order-id>",
	Short: "Check an order wallet's balance against its ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("order id: %w", err)
		}
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		w, err := s.svc.Wallets.GetWalletByOrder(cmd.Context(), orderID)
		if err != nil {
			return err
		}
		rec, err := s.svc.Wallets.Reconcile(cmd.Context(), w.ID)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
			return err
		}
		if !rec.Consistent {
			return fmt.Errorf("wallet %s is inconsistent", w.ID)
		}
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run one compensation detector now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		trigger := models.TriggerType(detectTrigger)
		if trigger != models.TriggerDelay && trigger != models.TriggerShortage {
			return fmt.Errorf("unknown trigger %q", detectTrigger)
		}
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.svc.Compensations.Detect(cmd.Context(), trigger)
		if err != nil {
			return err
		}
		out := map[string]any{"report": report}
		if applyLimit > 0 {
			applied, failed := s.svc.Compensations.ApplyApproved(cmd.Context(), applyLimit)
			out["applied"], out["apply_failed"] = applied, failed
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release-checks",
	Short: "Close elapsed inspection windows and release eligible wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		outcomes, err := s.svc.Settlement.RunReleaseChecks(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), outcomes)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		return db.RunMigrations(cmd.Context(), s.pool, s.cfg.MigrationsDir, s.log)
	},
}

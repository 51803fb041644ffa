package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FREE_CANCEL_DAYS", "")
	t.Setenv("COMMISSION_RATE_PERCENT", "")
	cfg := Load()
	if cfg.FreeCancelDays != 7 || cfg.CancelFeePercent != 20 {
		t.Errorf("refund defaults = %d/%d", cfg.FreeCancelDays, cfg.CancelFeePercent)
	}
	if cfg.CommissionRatePercent != 3 {
		t.Errorf("commission default = %v", cfg.CommissionRatePercent)
	}
	if cfg.InspectionPeriod != 72*time.Hour {
		t.Errorf("inspection period = %s", cfg.InspectionPeriod)
	}
	if cfg.Location == nil {
		t.Error("location not set")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CANCEL_FEE_PERCENT", "25")
	t.Setenv("COMMISSION_RATE_PERCENT", "2.5")
	t.Setenv("ADMIN_EMAILS", "ops@example.com, Lead@Example.com ,")
	t.Setenv("VOUCHER_VALID_DAYS", "not-a-number")

	cfg := Load()
	if cfg.CancelFeePercent != 25 {
		t.Errorf("CancelFeePercent = %d", cfg.CancelFeePercent)
	}
	if cfg.CommissionRatePercent != 2.5 {
		t.Errorf("CommissionRatePercent = %v", cfg.CommissionRatePercent)
	}
	if cfg.VoucherValidDays != 30 {
		t.Errorf("bad int should fall back, got %d", cfg.VoucherValidDays)
	}
	if len(cfg.AdminEmails) != 2 || !cfg.IsAdmin("lead@example.com") || cfg.IsAdmin("nobody@example.com") {
		t.Errorf("admin emails = %v", cfg.AdminEmails)
	}
}

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harvest-market/escrow/internal/auth"
	"github.com/harvest-market/escrow/internal/rbac"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestQuoteRefundTiers(t *testing.T) {
	t.Setenv("FREE_CANCEL_DAYS", "7")
	t.Setenv("CANCEL_FEE_PERCENT", "20")

	out, err := run(t, "quote-refund", "--amount", "1000000", "--days", "10", "--reason", "changed_mind", "--lang", "en")
	require.NoError(t, err)
	require.Contains(t, out, "tier_1")
	require.Contains(t, out, "1,000,000đ (100%)")

	out, err = run(t, "quote-refund", "--amount", "1000000", "--days", "0", "--reason", "changed_mind", "--lang", "vi")
	require.NoError(t, err)
	require.Contains(t, out, "tier_4")
	require.Contains(t, out, "penalty: 1.000.000đ")

	out, err = run(t, "quote-refund", "--amount", "1000000", "--days", "0", "--reason", "seller_cancel", "--lang", "en")
	require.NoError(t, err)
	require.Contains(t, out, "seller_cancel")
	require.Contains(t, out, "penalty: 0đ")
}

func TestQuoteRefundRejectsBadInput(t *testing.T) {
	_, err := run(t, "quote-refund", "--amount", "1000", "--days", "3", "--reason", "bored", "--lang", "en")
	require.ErrorContains(t, err, "unknown reason")

	_, err = run(t, "quote-refund", "--amount=-5", "--days", "3", "--reason", "other", "--lang", "en")
	require.ErrorContains(t, err, "positive")
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("ADMIN_EMAILS", "ops@example.vn")

	out, err := run(t, "token", "--email", "Lan@Example.vn", "--role", "customer", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.ParseJWT("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "lan@example.vn", claims.Email)
	require.Equal(t, rbac.RoleCustomer, claims.Role)
}

func TestTokenRefusesUnlistedAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("ADMIN_EMAILS", "ops@example.vn")

	_, err := run(t, "token", "--email", "lan@example.vn", "--role", "admin", "--ttl", "1h")
	require.ErrorContains(t, err, "ADMIN_EMAILS")

	_, err = run(t, "token", "--email", "lan@example.vn", "--role", "root", "--ttl", "1h")
	require.ErrorContains(t, err, "unknown role")
}

func TestDetectRejectsUnknownTrigger(t *testing.T) {
	_, err := run(t, "detect", "--trigger", "weather")
	require.ErrorContains(t, err, "unknown trigger")
}

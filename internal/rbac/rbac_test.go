package rbac

import (
	"testing"

	"github.com/harvest-market/escrow/internal/models"
)

func TestEveryRoleHasPermissions(t *testing.T) {
	for _, r := range AllRoles {
		if len(RolePermissions[r]) == 0 {
			t.Errorf("role %s has no permissions", r)
		}
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleCustomer, PermFileDispute, true},
		{RoleCustomer, PermResolveDispute, false},
		{RoleSeller, PermProposeResolution, true},
		{RoleSeller, PermReleaseFunds, false},
		{RoleAdmin, PermManageBlacklist, true},
		{Role("ghost"), PermViewWallet, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestCanSetCondition(t *testing.T) {
	if !CanSetCondition(RoleSeller, models.ConditionHarvestConfirmed) {
		t.Error("seller should confirm harvest")
	}
	if CanSetCondition(RoleSeller, models.ConditionCustomerAccepted) {
		t.Error("seller must not accept on behalf of customer")
	}
	if !CanSetCondition(RoleCustomer, models.ConditionCustomerAccepted) {
		t.Error("customer should accept")
	}
	if CanSetCondition(RoleCustomer, models.ConditionDisputeResolved) {
		t.Error("customer must not resolve disputes")
	}
	for _, c := range models.AllReleaseConditions {
		if !CanSetCondition(RoleAdmin, c) {
			t.Errorf("admin should set %s", c)
		}
	}
}

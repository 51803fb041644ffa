package rbac

import (
	"fmt"

	"github.com/harvest-market/escrow/internal/models"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

var AllRoles = []Role{RoleCustomer, RoleSeller, RoleAdmin}

func IsValidRole(r Role) bool {
	for _, v := range AllRoles {
		if v == r {
			return true
		}
	}
	return false
}

type Permission string

const (
	PermViewWallet          Permission = "view_wallet"
	PermFundWallet          Permission = "fund_wallet"
	PermSetReleaseCondition Permission = "set_release_condition"
	PermReleaseFunds        Permission = "release_funds"
	PermReconcile           Permission = "reconcile"
	PermPlaceOrder          Permission = "place_order"
	PermCancelOrder         Permission = "cancel_order"
	PermProcessRefund       Permission = "process_refund"
	PermDetectCompensation  Permission = "detect_compensation"
	PermReviewCompensation  Permission = "review_compensation"
	PermViewCompensation    Permission = "view_compensation"
	PermFileDispute         Permission = "file_dispute"
	PermViewDispute         Permission = "view_dispute"
	PermProposeResolution   Permission = "propose_resolution"
	PermResolveDispute      Permission = "resolve_dispute"
	PermInternalNote        Permission = "internal_note"
	PermViewRisk            Permission = "view_risk"
	PermManageBlacklist     Permission = "manage_blacklist"
	PermValidateOrder       Permission = "validate_order"
	PermManageLots          Permission = "manage_lots"
	PermViewAudit           Permission = "view_audit"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[Role][]Permission{
	RoleCustomer: {
		PermViewWallet, PermFundWallet, PermSetReleaseCondition, PermPlaceOrder,
		PermCancelOrder, PermViewCompensation, PermFileDispute, PermViewDispute,
	},
	RoleSeller: {
		PermViewWallet, PermSetReleaseCondition, PermCancelOrder, PermViewCompensation,
		PermViewDispute, PermProposeResolution, PermValidateOrder, PermManageLots,
	},
	RoleAdmin: {
		PermViewWallet, PermFundWallet, PermSetReleaseCondition, PermReleaseFunds, PermReconcile,
		PermPlaceOrder, PermCancelOrder, PermProcessRefund, PermDetectCompensation,
		PermReviewCompensation, PermViewCompensation, PermFileDispute, PermViewDispute,
		PermProposeResolution, PermResolveDispute, PermInternalNote, PermViewRisk,
		PermManageBlacklist, PermValidateOrder, PermManageLots, PermViewAudit,
	},
}

func HasPermission(role Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CanSetCondition reports which release gates a role may flip. Sellers attest
// harvest and delivery, customers accept goods; admins may set any gate.
func CanSetCondition(role Role, c models.ReleaseCondition) bool {
	switch role {
	case RoleAdmin:
		return models.IsValidReleaseCondition(c)
	case RoleSeller:
		return c == models.ConditionHarvestConfirmed || c == models.ConditionDeliveryConfirmed
	case RoleCustomer:
		return c == models.ConditionCustomerAccepted
	}
	panic(fmt.Sprintf("rbac: unhandled role %q", role))
}

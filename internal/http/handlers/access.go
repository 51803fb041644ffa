package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/middleware"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/rbac"
)

type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Access scopes non-admin callers to the orders they are a party to.
type Access struct {
	orders OrderReader
}

func NewAccess(orders OrderReader) *Access {
	return &Access{orders: orders}
}

// Order loads the order and fails with errForbidden when the caller is
// neither its customer, its seller nor an admin.
func (a *Access) Order(c *fiber.Ctx, orderID uuid.UUID) (*models.Order, error) {
	o, err := a.orders.GetOrder(c.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if !CanAccessOrder(middleware.GetRole(c), middleware.GetEmail(c), o) {
		return nil, errForbidden
	}
	return o, nil
}

func CanAccessOrder(role rbac.Role, email string, o *models.Order) bool {
	switch role {
	case rbac.RoleAdmin:
		return true
	case rbac.RoleSeller:
		return strings.EqualFold(o.SellerEmail, email)
	case rbac.RoleCustomer:
		return strings.EqualFold(o.CustomerEmail, email)
	}
	return false
}

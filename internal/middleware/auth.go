package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/auth"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		role := claims.Role
		if role == rbac.RoleAdmin && !cfg.IsAdmin(claims.Email) {
			log.Warn("admin token for non-admin email", zap.String("email", claims.Email))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access revoked"})
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxEmail, claims.Email)
		c.Locals(CtxRole, role)

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetEmail(c *fiber.Ctx) string {
	e, _ := c.Locals(CtxEmail).(string)
	return e
}

func GetRole(c *fiber.Ctx) rbac.Role {
	r, _ := c.Locals(CtxRole).(rbac.Role)
	return r
}

// GetActor builds the audit actor of the authenticated caller.
func GetActor(c *fiber.Ctx) models.Actor {
	t := models.ActorTypeCustomer
	switch GetRole(c) {
	case rbac.RoleAdmin:
		t = models.ActorTypeAdmin
	case rbac.RoleSeller:
		t = models.ActorTypeSeller
	}
	return models.Actor{Email: GetEmail(c), Type: t}
}

// RequirePermission rejects callers whose role lacks perm.
func RequirePermission(perm rbac.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied: " + string(perm)})
		}
		return c.Next()
	}
}

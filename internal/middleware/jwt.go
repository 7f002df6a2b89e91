package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/utils"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// JWTProtected validates HMAC bearer tokens and binds the caller's id and role
// to the request. Tokens without a subject or with an unknown role are refused.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID := extractUserIDFromClaims(claims)
		if userID == nil || *userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "token subject missing")
		}

		role := extractUserRoleFromClaims(claims)
		switch lifecycle.Role(role) {
		case lifecycle.RoleStudent, lifecycle.RoleTeacher, lifecycle.RoleAdmin:
		default:
			return utils.SendError(c, fiber.StatusForbidden, "unknown role")
		}

		c.Locals(localUserID, *userID)
		c.Locals(localUserRole, role)

		return c.Next()
	}
}

// ActorFromContext returns the authenticated caller, or false when the
// request passed no JWT check.
func ActorFromContext(c *fiber.Ctx) (lifecycle.Actor, bool) {
	id, ok := c.Locals(localUserID).(uint)
	if !ok || id == 0 {
		return lifecycle.Actor{}, false
	}
	role := normalizeRoleValue(c.Locals(localUserRole))
	if role == "" {
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{ID: id, Role: lifecycle.Role(role)}, true
}

func actorID(c *fiber.Ctx) uint {
	actor, _ := ActorFromContext(c)
	return actor.ID
}

func extractUserIDFromClaims(claims jwt.MapClaims) *uint {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil {
				return &normalized
			}
		}
	}

	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	}
	return ""
}

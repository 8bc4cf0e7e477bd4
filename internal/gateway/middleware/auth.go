package middleware

import (
	"context"
	"strings"

	"coderank/internal/admission"
	"coderank/internal/gateway/service"
	appErr "coderank/pkg/errors"
	"coderank/pkg/utils/contextkey"
	"coderank/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the owner id when Mode is "header".
	UserIDHeader = "X-User-Id"
	// UserRoleHeader optionally carries the role when Mode is "header".
	UserRoleHeader = "X-User-Role"

	ownerKey = "user_id"
	roleKey  = "user_role"
)

type AuthPolicy struct {
	// Mode is "jwt" (default) or "header". Header mode trusts X-User-Id and is meant for local runs.
	Mode  string
	Roles []string
}

// AuthMiddleware resolves the caller's identity and rejects anonymous requests.
func AuthMiddleware(authService *service.AuthService, policy AuthPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			info service.Identity
			err  error
		)
		switch strings.ToLower(policy.Mode) {
		case "header":
			info, err = identityFromHeaders(c)
		default:
			if authService == nil {
				response.AbortWithErrorCode(c, appErr.ServiceUnavailable, "auth service unavailable")
				return
			}
			info, err = authService.Authenticate(c.Request.Context(), extractBearerToken(c))
		}
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		if len(policy.Roles) > 0 && !hasRole(string(info.Role), policy.Roles) {
			response.AbortWithErrorCode(c, appErr.Forbidden, "insufficient role")
			return
		}

		c.Set(ownerKey, info.OwnerID)
		c.Set(roleKey, info.Role)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.UserID, info.OwnerID))
		c.Next()
	}
}

// OwnerID returns the authenticated owner id set by AuthMiddleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

// Role returns the authenticated role set by AuthMiddleware.
func Role(c *gin.Context) admission.Role {
	if v, ok := c.Get(roleKey); ok {
		if role, ok := v.(admission.Role); ok {
			return role
		}
	}
	return admission.RoleUser
}

func identityFromHeaders(c *gin.Context) (service.Identity, error) {
	owner := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if owner == "" {
		return service.Identity{}, appErr.New(appErr.Unauthorized).WithMessage("missing " + UserIDHeader + " header")
	}
	return service.Identity{OwnerID: owner, Role: admission.ParseRole(c.GetHeader(UserRoleHeader))}, nil
}

// extractBearerToken reads the Authorization header, falling back to the
// access_token query parameter because browsers cannot set headers on websocket upgrades.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return strings.TrimSpace(c.Query("access_token"))
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}

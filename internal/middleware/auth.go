package middleware

import (
	"strings"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	claimsKey   = "claims"
	// TokenKey holds the raw credential of the current request.
	TokenKey = "token"
)

// credential reads the token from the cookie first, then the bearer header.
func credential(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// Authenticate rejects requests without a valid token and stores the
// caller's Identity on the context.
func Authenticate(authenticator *auth.Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := credential(c, cookieName)
		id, claims, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		SetIdentity(c, id)
		c.Set(claimsKey, claims)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// RequireRole lets the request through when the identity holds one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		if err := auth.RequireRole(id, roles...); err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SetIdentity records the authenticated caller on the request context.
func SetIdentity(c *gin.Context, id auth.Identity) {
	c.Set(identityKey, id)
}

func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// MustIdentity returns the identity or records an Unauthorized error.
func MustIdentity(c *gin.Context) (auth.Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		c.Error(apperror.Unauthorized("You are not logged in! Please log in to get access."))
		return auth.Identity{}, false
	}
	return id, true
}

func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}

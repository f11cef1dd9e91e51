package auth

import (
	"context"
	"errors"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/cache"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/repositories"

	"gorm.io/gorm"
)

// Revoker keeps a denylist of token IDs until the tokens expire.
type Revoker struct {
	cache cache.Cache
	now   func() time.Time
}

func NewRevoker(c cache.Cache) *Revoker {
	return &Revoker{cache: c, now: time.Now}
}

func revokedKey(jti string) string {
	return "auth:revoked:" + jti
}

func (r *Revoker) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(r.now())
	}
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revokedKey(claims.ID), true, ttl)
}

func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return r.cache.Exists(ctx, revokedKey(jti))
}

// Authenticator resolves a bearer credential to the Identity of an active
// user.
type Authenticator struct {
	tokens  *TokenService
	revoker *Revoker
	users   *repositories.Repository[models.User]
}

func NewAuthenticator(tokens *TokenService, revoker *Revoker, users *repositories.Repository[models.User]) *Authenticator {
	return &Authenticator{tokens: tokens, revoker: revoker, users: users}
}

func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}

func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Identity, *Claims, error) {
	if credential == "" {
		return Identity{}, nil, apperror.Unauthorized("You are not logged in! Please log in to get access.")
	}

	claims, err := a.tokens.Parse(credential)
	if err != nil {
		return Identity{}, nil, apperror.Wrap(apperror.KindUnauthorized, "Invalid token. Please log in again.", err)
	}

	if a.revoker != nil {
		revoked, err := a.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, nil, apperror.Internal("check token revocation", err)
		}
		if revoked {
			return Identity{}, nil, apperror.Unauthorized("Your session has ended. Please log in again.")
		}
	}

	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, nil, apperror.Wrap(apperror.KindUnauthorized, "Invalid token. Please log in again.", err)
	}

	user, err := a.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, nil, apperror.Unauthorized("The user belonging to this token no longer exists.")
	}
	if err != nil {
		return Identity{}, nil, apperror.Internal("load token user", err)
	}

	return Identity{UserID: user.ID, Role: user.Role}, claims, nil
}

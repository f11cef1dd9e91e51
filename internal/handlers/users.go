package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// meResponse hides bookkeeping fields from the caller's own profile.
type meResponse struct {
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Photo *string     `json:"photo"`
	Role  models.Role `json:"role"`
}

type UserHandler struct {
	users   services.UserService
	tokens  *auth.TokenService
	revoker *auth.Revoker
	cookie  CookieConfig
}

func NewUserHandler(users services.UserService, tokens *auth.TokenService, revoker *auth.Revoker, cookie CookieConfig) *UserHandler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = tokens.TTL()
	}
	return &UserHandler{users: users, tokens: tokens, revoker: revoker, cookie: cookie}
}

func (h *UserHandler) setCookie(c *gin.Context, token string, maxAge int) {
	if h.cookie.Secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
}

func (h *UserHandler) sendToken(c *gin.Context, code int, user *models.User) {
	token, _, err := h.tokens.Issue(user)
	if err != nil {
		c.Error(err)
		return
	}
	h.setCookie(c, token, int(h.cookie.MaxAge.Seconds()))
	c.JSON(code, gin.H{
		"status": statusSuccess,
		"token":  token,
		"data":   user,
	})
}

func (h *UserHandler) Signup(c *gin.Context) {
	var req services.SignupRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Signup(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	h.sendToken(c, http.StatusCreated, user)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	h.sendToken(c, http.StatusOK, user)
}

// Logout always clears the cookie. A token that still verifies is revoked
// so it cannot be replayed from the Authorization header.
func (h *UserHandler) Logout(c *gin.Context) {
	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}

	if token != "" && h.revoker != nil {
		if claims, err := h.tokens.Parse(token); err == nil {
			if err := h.revoker.Revoke(c.Request.Context(), claims); err != nil {
				c.Error(err)
				return
			}
		}
	}

	h.setCookie(c, "", -1)
	success(c, http.StatusOK, nil)
}

func (h *UserHandler) List(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	users, err := h.users.List(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  statusSuccess,
		"results": len(users),
		"data":    users,
	})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	user, err := h.users.GetMe(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, meResponse{
		Name:  user.Name,
		Email: user.Email,
		Photo: user.Photo,
		Role:  user.Role,
	})
}

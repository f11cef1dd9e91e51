package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/cache"
	"github.com/TNEM22/synera-app-backend/internal/database"
	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/repositories"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type authFixture struct {
	authenticator *auth.Authenticator
	user          *models.User
	admin         *models.User
}

func setupAuth(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewInMemoryPool()
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	store := repositories.NewStore(pool.DB)
	user := &models.User{Name: "Member", Email: "member@example.com", PasswordHash: "x", Active: true}
	admin := &models.User{Name: "Admin", Email: "admin@example.com", PasswordHash: "x", Role: models.RoleAdmin, Active: true}
	require.NoError(t, store.Users.Create(context.Background(), user))
	require.NoError(t, store.Users.Create(context.Background(), admin))

	tokens := auth.NewTokenService("test-secret", "synera-test", time.Hour)
	revoker := auth.NewRevoker(cache.NewMemoryCache(16))
	return &authFixture{
		authenticator: auth.NewAuthenticator(tokens, revoker, store.Users),
		user:          user,
		admin:         admin,
	}
}

func (f *authFixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, _, err := f.authenticator.Tokens().Issue(u)
	require.NoError(t, err)
	return token
}

func (f *authFixture) router() *gin.Engine {
	router := gin.New()
	router.Use(middleware.ErrorHandler(nil))
	router.Use(middleware.Authenticate(f.authenticator, "token"))
	router.GET("/me", func(c *gin.Context) {
		id, _ := middleware.IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": id.UserID.String(), "role": id.Role})
	})
	router.GET("/admin", middleware.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticate_MissingToken(t *testing.T) {
	f := setupAuth(t)

	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "You are not logged in! Please log in to get access.", body["message"])
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	f := setupAuth(t)

	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, f.user))
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, f.user.ID.String(), body["id"])
	assert.Equal(t, "user", body["role"])
}

func TestAuthenticate_Cookie(t *testing.T) {
	f := setupAuth(t)

	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: f.token(t, f.user)})
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	f := setupAuth(t)

	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not able to verify the token, please login again.", decode(t, w)["message"])
}

func TestRequireRole(t *testing.T) {
	f := setupAuth(t)

	tests := []struct {
		name     string
		user     *models.User
		expected int
	}{
		{"member is forbidden", f.user, http.StatusForbidden},
		{"admin passes", f.admin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+f.token(t, tt.user))
			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestErrorHandler_Translation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperror.Validation("A task must have a title."), http.StatusBadRequest, "A task must have a title."},
		{"not found", apperror.NotFound("Project not found"), http.StatusNotFound, "Project not found"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "nope"},
		{"conflict", apperror.Conflict("Already registered."), http.StatusConflict, "Already registered."},
		{"wrapped record not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), http.StatusNotFound, "Resource not found"},
		{"duplicate key", gorm.ErrDuplicatedKey, http.StatusConflict, "Already registered."},
		{"expired token", jwt.ErrTokenExpired, http.StatusUnauthorized, "Not able to verify the token, please login again."},
		{"internal keeps details private", apperror.Internal("create task", errors.New("disk full")), http.StatusInternalServerError, "Some error occurred at server side."},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Some error occurred at server side."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.ErrorHandler(nil))
			router.GET("/", func(c *gin.Context) { c.Error(tt.err) })

			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(nil))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.RequestIDKey))
	})

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	generated := w.Header().Get(middleware.RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := middleware.NewIPRateLimiter(1, 2)

	router := gin.New()
	router.Use(middleware.RateLimit(limiter))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, limiter.Len())

	limiter.Cleanup(0)
	assert.Equal(t, 0, limiter.Len())
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/repositories"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (r SignupRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperror.Validation("Please tell us your name!")
	}
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return apperror.Validation("Please provide your email.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperror.Validation("Please provide a valid email.")
	}
	if len(r.Password) < minPasswordLength {
		return apperror.Validation("Password must be at least %d characters long.", minPasswordLength)
	}
	if r.Password != r.PasswordConfirm {
		return apperror.Validation("Passwords are not the same!")
	}
	return nil
}

type UserService interface {
	Signup(ctx context.Context, req SignupRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	GetMe(ctx context.Context, id auth.Identity) (*models.User, error)
	List(ctx context.Context, id auth.Identity) ([]models.User, error)
	CreateAdmin(ctx context.Context, req SignupRequest) (*models.User, error)
}

type UserServiceImpl struct {
	store      *repositories.Store
	bcryptCost int
	logger     *slog.Logger
}

func NewUserService(store *repositories.Store, bcryptCost int, logger *slog.Logger) *UserServiceImpl {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserServiceImpl{store: store, bcryptCost: bcryptCost, logger: logger.With("service", "users")}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword)) == nil
}

func (s *UserServiceImpl) Signup(ctx context.Context, req SignupRequest) (*models.User, error) {
	return s.register(ctx, req, models.RoleUser)
}

func (s *UserServiceImpl) CreateAdmin(ctx context.Context, req SignupRequest) (*models.User, error) {
	return s.register(ctx, req, models.RoleAdmin)
}

func (s *UserServiceImpl) register(ctx context.Context, req SignupRequest, role models.Role) (*models.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(req.Email)

	// Deactivated accounts still own their address.
	_, err := s.store.AllUsers.FindOneBy(ctx, repositories.Filter{"email": email})
	if err == nil {
		return nil, apperror.Conflict("Already registered.")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("check email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("Already registered.")
		}
		return nil, apperror.Internal("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", role)
	return user, nil
}

func (s *UserServiceImpl) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.Validation("Please provide email and password!")
	}

	user, err := s.store.Users.FindOneBy(ctx, repositories.Filter{"email": email})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Unauthorized("Incorrect email or password.")
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, apperror.Unauthorized("Incorrect email or password.")
	}
	return user, nil
}

func (s *UserServiceImpl) GetMe(ctx context.Context, id auth.Identity) (*models.User, error) {
	user, err := s.store.Users.FindByID(ctx, id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}
	return user, nil
}

func (s *UserServiceImpl) List(ctx context.Context, id auth.Identity) ([]models.User, error) {
	if err := auth.RequireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.store.Users.FindBy(ctx, nil, "created_at")
	if err != nil {
		return nil, apperror.Internal("list users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

var _ UserService = (*UserServiceImpl)(nil)

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/middleware"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
)

// AuthService handles registration and username/password login.
type AuthService struct {
	users port.UserStore
	jwt   middleware.JWTConfig
}

func NewAuthService(users port.UserStore, jwt middleware.JWTConfig) *AuthService {
	return &AuthService{users: users, jwt: jwt}
}

// RegisterRequest carries the inputs of a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by both register and login.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Register creates a user with a bcrypt password hash and returns a signed
// token so the client is logged in immediately.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: username and email are required", port.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", port.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         "user",
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, err
	}

	token, err := middleware.GenerateJWT(created, s.jwt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	slog.Info("user registered", "user_id", created.ID, "username", created.Username)
	return &AuthResponse{Token: token, User: created}, nil
}

// Login verifies the password and returns a signed token. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, port.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, port.ErrUnauthorized
	}

	token, err := middleware.GenerateJWT(user, s.jwt)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	return &AuthResponse{Token: token, User: user}, nil
}

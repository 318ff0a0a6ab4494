package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"teamboard/internal/middleware"
	"teamboard/internal/models"
	"teamboard/internal/repositories"
)

const minPasswordLen = 6

type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	HashPassword(plain string) (string, error)
}

type authService struct {
	users    repositories.UserRepository
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(users repositories.UserRepository, secret []byte, tokenTTL time.Duration) AuthService {
	return &authService{users: users, secret: secret, tokenTTL: tokenTTL}
}

func (s *authService) HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, invalid("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("email %q is not valid", req.Email)
	}
	if len(req.Password) < minPasswordLen {
		return nil, invalid("password must be at least %d characters", minPasswordLen)
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, invalid("unknown role %q", req.Role)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, invalid("email %q is already registered", email)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Printf("[auth][register] id=%s role=%s", user.ID, user.Role)
	return s.respond(user)
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Printf("[auth][login] unknown email=%q", email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Printf("[auth][login] bcrypt mismatch for userID=%s", user.ID)
		return nil, ErrInvalidCredentials
	}
	return s.respond(user)
}

func (s *authService) respond(user *models.User) (*models.AuthResponse, error) {
	token, err := middleware.IssueToken(s.secret, user, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &models.AuthResponse{Token: token, User: *user}, nil
}

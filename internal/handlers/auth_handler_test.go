package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamboard/internal/models"
	"teamboard/internal/services"
)

type mockAuthService struct {
	registerFn func(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	loginFn    func(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
}

func (m *mockAuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return m.registerFn(ctx, req)
}

func (m *mockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return m.loginFn(ctx, req)
}

func (m *mockAuthService) HashPassword(plain string) (string, error) { return plain, nil }

func newAuthRouter(svc services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(svc)
	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/login", h.Login)
	return r
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(_ context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
			if req.Password != "right" {
				return nil, services.ErrInvalidCredentials
			}
			return &models.AuthResponse{Token: "tok", User: models.User{ID: "u-a", Email: req.Email, PasswordHash: "hash"}}, nil
		},
	}
	r := newAuthRouter(svc)

	rec := send(r, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "right"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok"`)
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = send(r, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())
}

func TestAuthHandler_Register(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(_ context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
			if req.Name == "" {
				return nil, services.ErrValidation
			}
			return &models.AuthResponse{Token: "tok", User: models.User{ID: "u-new", Name: req.Name, Role: models.RoleUser}}, nil
		},
	}
	r := newAuthRouter(svc)

	rec := send(r, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Dan", "email": "d@example.com", "password": "123456"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u-new"`)

	rec = send(r, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "d@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

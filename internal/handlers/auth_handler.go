package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"teamboard/internal/models"
	"teamboard/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// @Summary      Register
// @Description  Creates an account and returns an access token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        user  body      models.RegisterRequest  true  "account"
// @Success      201   {object}  models.AuthResponse
// @Failure      400   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][register] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, "auth", "register", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary      Login
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "credentials"
// @Success      200    {object}  models.AuthResponse
// @Failure      401    {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[auth][login] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, "auth", "login", err)
		return
	}
	log.Printf("[auth][login] success userID=%s role=%s", resp.User.ID, resp.User.Role)
	c.JSON(http.StatusOK, resp)
}

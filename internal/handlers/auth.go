package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"affiliate-service/internal/auth"
	"affiliate-service/internal/models"
	"affiliate-service/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	tokens      *auth.TokenManager
	log         *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	authService *services.AuthService,
	userService *services.UserService,
	tokens *auth.TokenManager,
	log *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		tokens:      tokens,
		log:         log.Named("auth_handler"),
	}
}

// Register creates an account. A "ref" code links the account to an affiliate.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required,min=8,max=72"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Ref      string `json:"ref"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref := req.Ref
	if ref == "" {
		ref = c.Query("ref")
	}

	user, err := h.authService.Register(c.Request.Context(), services.RegisterRequest{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		Username:   req.Username,
		RefCode:    ref,
		VisitorKey: visitorKey(c),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

// Login authenticates with email and password
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		h.log.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(status, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout handles user logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}

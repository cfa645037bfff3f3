package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/identity"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

// userSvc is the interface expected by AuthHandler, satisfied by *users.UserService.
type userSvc interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.User, error)
	Login(ctx context.Context, userID, password, deviceHash string) (*users.User, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	users    userSvc
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(userSvc userSvc, sessions *identity.SessionIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: userSvc, sessions: sessions, logger: logger}
}

// Register mounts the auth routes on rg.
func (h *AuthHandler) Register(rg gin.IRoutes) {
	rg.POST("/register", h.SignUp)
	rg.POST("/login", h.Login)
}

type registerRequest struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	DeviceHash string `json:"device_hash"`
}

type loginRequest struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	DeviceHash string `json:"device_hash"`
}

// SignUp handles POST /register.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	u, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		UserID:     req.UserID,
		Password:   req.Password,
		Role:       req.Role,
		DeviceHash: req.DeviceHash,
	})
	switch {
	case errors.Is(err, users.ErrMissingCredentials),
		errors.Is(err, users.ErrInvalidRole),
		errors.Is(err, users.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("register user", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registration could not be recorded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Registered successfully",
		"user_id": u.UserID,
		"role":    u.Role,
	})
}

// Login handles POST /login and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.UserID, req.Password, req.DeviceHash)
	switch {
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	case errors.Is(err, users.ErrUnrecognizedDevice):
		c.JSON(http.StatusForbidden, gin.H{"error": "Login failed: Unrecognized device. Please register again."})
		return
	case err != nil:
		h.logger.Error("login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := h.sessions.Issue(u.UserID, string(u.Role))
	if err != nil {
		h.logger.Error("issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged in",
		"token":   token,
		"role":    u.Role,
		"user_id": u.UserID,
	})
}

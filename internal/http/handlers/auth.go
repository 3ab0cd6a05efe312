package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/networth/tracker/internal/accounts"
	"github.com/networth/tracker/internal/auth"
	"github.com/networth/tracker/internal/config"
	"github.com/networth/tracker/internal/domain/user"
	"github.com/networth/tracker/internal/http/middlewares"
	"github.com/networth/tracker/internal/observability"
	"github.com/networth/tracker/internal/repo/postgres"
)

// AccountFlows is the slice of the orchestrator the handlers need.
type AccountFlows interface {
	Register(ctx context.Context, name, email, password string) (user.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
	Profile(ctx context.Context, email string) (user.User, error)
}

type AuthHandler struct {
	flows AccountFlows
	prom  *observability.Prom
}

func NewAuthHandler(flows AccountFlows, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{
		flows: flows,
		prom:  prom,
	}
}

func (h *AuthHandler) observe(op, result string) {
	if h.prom != nil {
		h.prom.ObserveAuth(op, result)
	}
}

// Password bounds: at least 8 characters, at most 72 so the plaintext
// always fits in a bcrypt input.

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	u, token, err := h.flows.Register(cctx, req.Name, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateAccount) {
			h.observe("register", "duplicate")
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email already registered", nil)
			return
		}

		h.observe("register", "error")
		RespondInternal(ctx, "Unable to create user")
		return
	}

	h.observe("register", "ok")

	ctx.JSON(http.StatusCreated, gin.H{
		"user":  u,
		"token": token,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	token, err := h.flows.Login(cctx, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			// same response for unknown email and wrong password
			h.observe("login", "rejected")
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
			return
		}

		h.observe("login", "error")
		RespondInternal(ctx, "Login failed")
		return
	}

	h.observe("login", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
	})
}

func (h *AuthHandler) ValidateToken(ctx *gin.Context) {
	raw, ok := middlewares.BearerToken(ctx)

	if !ok {
		h.observe("validate", "rejected")
		RespondUnAuthorized(ctx, "unauthorized", "Missing or invalid Authorization header")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	_, err := h.flows.ValidateToken(cctx, raw)

	if err != nil {
		if errors.Is(err, accounts.ErrInvalidSession) {
			h.observe("validate", "rejected")
			RespondUnAuthorized(ctx, "invalid_token", "Invalid or expired token")
			return
		}

		h.observe("validate", "error")
		RespondInternal(ctx, "Token validation failed")
		return
	}

	h.observe("validate", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Token is valid",
	})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok || email == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.flows.Profile(cctx, email)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "Account no longer exists")
			return
		}

		RespondInternal(ctx, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user": u,
	})
}

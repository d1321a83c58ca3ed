package auth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	authsvc "github.com/jwalitptl/ehr-chainview/internal/service/auth"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

type Handler struct {
	svc authsvc.Servicer
}

func NewHandler(svc authsvc.Servicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/nonce", h.Nonce)
		auth.POST("/login", h.Login)
	}
}

// Nonce issues the message the wallet signs to log in.
func (h *Handler) Nonce(c *gin.Context) {
	var req model.NonceRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Nonce(c.Request.Context(), common.HexToAddress(req.Address))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tokens, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, tokens)
}

// RegisterSessionRoutes expects r to be authenticated.
func (h *Handler) RegisterSessionRoutes(r *gin.RouterGroup) {
	r.GET("/auth/session", h.Session)
}

// Session echoes the signed-in wallet and the dashboard it may use.
func (h *Handler) Session(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		handler.Fail(c, apperrors.Unauthorized(nil))
		return
	}
	handler.OK(c, gin.H{
		"address":    claims.Wallet().Hex(),
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt,
	})
}

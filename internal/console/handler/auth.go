package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jmerrifield20/marketplace-console/internal/identity"
	"go.uber.org/zap"
)

// AuthHandler exchanges the admin secret for operator tokens.
type AuthHandler struct {
	tokens *identity.OperatorTokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(tokens *identity.OperatorTokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger}
}

// Register mounts the auth routes on rg.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	Secret     string `json:"secret" binding:"required"`
	OperatorID string `json:"operator_id" binding:"required,max=128"`
	Name       string `json:"name" binding:"max=128"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req, binding.JSON) {
		return
	}
	token, err := h.tokens.Exchange(req.Secret, req.OperatorID, req.Name)
	if errors.Is(err, identity.ErrBadSecret) {
		h.logger.Warn("operator token refused",
			zap.String("operator", req.OperatorID),
			zap.String("client_ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": "Bearer"})
}

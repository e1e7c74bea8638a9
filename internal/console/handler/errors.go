package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/store"
	"go.uber.org/zap"
)

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	var ve *model.ErrValidation
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStale), errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	}
	switch model.CodeOf(err) {
	case model.CodeInvalidTransition:
		return http.StatusBadRequest
	case model.CodeMissingReason:
		return http.StatusUnprocessableEntity
	case model.CodeGuardFailed, model.CodeTerminalState:
		return http.StatusConflict
	case model.CodePersistenceFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status statusOf picks. Server-side
// failures are logged; their detail is not echoed to the client.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error()}
	if code := model.CodeOf(err); code != "" {
		body["code"] = code
	}
	switch {
	case status == http.StatusInternalServerError:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal error"
	case status == http.StatusBadGateway:
		logger.Warn("upstream failure", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

// bind decodes the request into req with b and writes a 400 on failure.
// Validation failures are reported per field.
func bind(c *gin.Context, req any, b binding.Binding) bool {
	var verrs validator.ValidationErrors
	err := c.ShouldBindWith(req, b)
	switch {
	case err == nil:
		return true
	case errors.As(err, &verrs):
		fields := make(map[string][]string)
		for _, ferr := range verrs {
			fields[ferr.Field()] = append(fields[ferr.Field()], ferr.Error())
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
	return false
}

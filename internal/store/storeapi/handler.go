// Package storeapi serves the /entities persistence contract over any
// store.Store, so one console process can act as the backend of another.
package storeapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/store"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// Handler exposes a store.Store over HTTP.
type Handler struct {
	store  store.Store
	logger *zap.Logger
}

// New creates a Handler.
func New(s store.Store, logger *zap.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

// Register mounts the entity routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/entities/:kind", h.List)
	rg.POST("/entities/:kind", h.Create)
	rg.GET("/entities/:kind/:id", h.Get)
	rg.PATCH("/entities/:kind/:id", h.Patch)
	rg.DELETE("/entities/:kind/:id", h.Delete)
}

// List handles GET /entities/:kind.
func (h *Handler) List(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	ents, err := h.store.List(c.Request.Context(), kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	env := store.Envelope{Success: true, Entities: make([]json.RawMessage, 0, len(ents))}
	for _, ent := range ents {
		data, err := model.Encode(ent)
		if err != nil {
			h.fail(c, err)
			return
		}
		env.Entities = append(env.Entities, data)
	}
	c.JSON(http.StatusOK, env)
}

// Get handles GET /entities/:kind/:id.
func (h *Handler) Get(c *gin.Context) {
	kind, id, ok := h.target(c)
	if !ok {
		return
	}
	ent, err := h.store.Get(c.Request.Context(), kind, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.entity(c, http.StatusOK, ent)
}

// Create handles POST /entities/:kind.
func (h *Handler) Create(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: "read body: " + err.Error()})
		return
	}
	ent, err := model.Decode(kind, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: err.Error()})
		return
	}
	created, err := h.store.Create(c.Request.Context(), ent)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.entity(c, http.StatusCreated, created)
}

// Patch handles PATCH /entities/:kind/:id, a conditional transition write.
func (h *Handler) Patch(c *gin.Context) {
	kind, id, ok := h.target(c)
	if !ok {
		return
	}
	var req store.PatchRequest
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxBody)).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: "decode body: " + err.Error()})
		return
	}
	ent, err := model.Decode(kind, req.Entity)
	if err != nil {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: err.Error()})
		return
	}
	if req.Status != "" && ent.CurrentStatus() != req.Status {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: "status does not match entity snapshot"})
		return
	}
	out, err := h.store.Apply(c.Request.Context(), store.Command{
		Kind:              kind,
		ID:                id,
		Action:            req.Action,
		Status:            req.Status,
		ExpectedStatus:    req.ExpectedStatus,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
		Reason:            req.Reason,
		Entity:            ent,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Debug("entity updated",
		zap.String("kind", string(kind)),
		zap.String("id", id.String()),
		zap.String("action", string(req.Action)),
	)
	h.entity(c, http.StatusOK, out)
}

// Delete handles DELETE /entities/:kind/:id.
func (h *Handler) Delete(c *gin.Context) {
	kind, id, ok := h.target(c)
	if !ok {
		return
	}
	var req store.DeleteRequest
	if c.Request.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, store.Envelope{Error: "decode body: " + err.Error()})
			return
		}
	}
	if req.ExpectedStatus == "" {
		// Unconditional deletes still go through the store's status check.
		cur, err := h.store.Get(c.Request.Context(), kind, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.ExpectedStatus = cur.CurrentStatus()
	}
	err := h.store.Remove(c.Request.Context(), store.Command{
		Kind:              kind,
		ID:                id,
		Action:            req.Action,
		ExpectedStatus:    req.ExpectedStatus,
		ExpectedUpdatedAt: req.ExpectedUpdatedAt,
		Reason:            req.Reason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, store.Envelope{Success: true})
}

func (h *Handler) kind(c *gin.Context) (model.Kind, bool) {
	kind, err := model.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, store.Envelope{Error: err.Error()})
		return "", false
	}
	return kind, true
}

func (h *Handler) target(c *gin.Context) (model.Kind, uuid.UUID, bool) {
	kind, ok := h.kind(c)
	if !ok {
		return "", uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, store.Envelope{Error: "invalid entity id"})
		return "", uuid.Nil, false
	}
	return kind, id, true
}

func (h *Handler) entity(c *gin.Context, status int, ent model.Entity) {
	data, err := model.Encode(ent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, store.Envelope{Success: true, Entity: data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *model.ErrValidation
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, store.Envelope{Error: err.Error()})
	case errors.Is(err, store.ErrStale), errors.Is(err, store.ErrExists):
		c.JSON(http.StatusConflict, store.Envelope{Error: err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, store.Envelope{Error: verr.Msg})
	default:
		h.logger.Error("store request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, store.Envelope{Error: "store failure"})
	}
}

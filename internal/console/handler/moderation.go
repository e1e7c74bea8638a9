// Package handler implements the console's admin HTTP API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/jmerrifield20/marketplace-console/internal/identity"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/bulk"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/filter"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/service"
	"go.uber.org/zap"
)

// OperatorHeader names the acting operator when the API runs without token
// auth.
const OperatorHeader = "X-Operator-ID"

// ModerationHandler serves entity queues, transitions and bulk operations.
type ModerationHandler struct {
	svc    *service.ModerationService
	logger *zap.Logger
}

// NewModerationHandler creates a ModerationHandler.
func NewModerationHandler(svc *service.ModerationService, logger *zap.Logger) *ModerationHandler {
	return &ModerationHandler{svc: svc, logger: logger}
}

// Register mounts the moderation routes on rg.
func (h *ModerationHandler) Register(rg *gin.RouterGroup) {
	h.registerKind(rg, "/dealers", model.KindDealer)
	rg.GET("/listings/public", h.PublicListings)
	h.registerKind(rg, "/listings", model.KindListing)
	h.registerKind(rg, "/reports", model.KindReport)

	b := rg.Group("/bulk")
	{
		b.POST("/listings/approve-pending", h.runBulk(bulk.ApproveAllPending))
		b.POST("/reports/resolve-critical", h.runBulk(bulk.ResolveAllCritical))
	}

	rg.GET("/rules", h.Rules)
}

func (h *ModerationHandler) registerKind(rg *gin.RouterGroup, path string, kind model.Kind) {
	g := rg.Group(path)
	if kind == model.KindReport {
		g.GET("", h.ReportQueue)
	} else {
		g.GET("", h.list(kind))
	}
	g.POST("", h.create(kind))
	g.GET("/:id", h.get(kind))
	g.GET("/:id/transitions", h.allowed(kind))
	g.POST("/:id/transitions/:name", h.transition(kind))
}

// transitionRequest is the optional body of a transition call.
type transitionRequest struct {
	Reason     string  `json:"reason" binding:"max=2000"`
	PlanID     string  `json:"plan_id" binding:"omitempty,max=64"`
	MonthlyFee float64 `json:"monthly_fee" binding:"gte=0"`
}

// reportQuery is the query string of GET /reports.
type reportQuery struct {
	Type     string `form:"type" binding:"omitempty,oneof=listing user dealer comment"`
	Search   string `form:"q" binding:"max=200"`
	Status   string `form:"status" binding:"omitempty,oneof=pending under_review resolved"`
	Severity string `form:"severity" binding:"omitempty,oneof=low medium high critical"`
}

func (h *ModerationHandler) list(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ents, err := h.svc.List(c.Request.Context(), kind)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": ents, "count": len(ents)})
	}
}

// ReportQueue handles GET /reports?type=&q=&status=&severity=.
func (h *ModerationHandler) ReportQueue(c *gin.Context) {
	var q reportQuery
	if !bind(c, &q, binding.Query) {
		return
	}
	reports, err := h.svc.ReportQueue(c.Request.Context(), filter.ReportQuery{
		Type:     model.TargetType(q.Type),
		Search:   q.Search,
		Status:   model.ReportStatus(q.Status),
		Severity: model.Severity(q.Severity),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reports, "count": len(reports)})
}

// PublicListings handles GET /listings/public.
func (h *ModerationHandler) PublicListings(c *gin.Context) {
	listings, err := h.svc.PublicListings(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": listings, "count": len(listings)})
}

func (h *ModerationHandler) create(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ent, err := model.New(kind)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		if !bind(c, ent, binding.JSON) {
			return
		}
		created, err := h.svc.Create(c.Request.Context(), ent, operatorID(c))
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func (h *ModerationHandler) get(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		ent, err := h.svc.Get(c.Request.Context(), kind, id)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, ent)
	}
}

func (h *ModerationHandler) allowed(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		names, err := h.svc.Allowed(c.Request.Context(), kind, id, model.Input{OperatorID: operatorID(c)})
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transitions": names})
	}
}

func (h *ModerationHandler) transition(kind model.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req transitionRequest
		if c.Request.ContentLength != 0 && !bind(c, &req, binding.JSON) {
			return
		}
		in := model.Input{
			Reason:     req.Reason,
			OperatorID: operatorID(c),
			PlanID:     req.PlanID,
			MonthlyFee: req.MonthlyFee,
		}
		name := model.TransitionName(c.Param("name"))
		res, err := h.svc.Transition(c.Request.Context(), kind, id, name, in)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		h.logger.Info("transition applied",
			zap.String("kind", string(kind)),
			zap.String("id", id.String()),
			zap.String("transition", string(name)),
			zap.String("operator", in.OperatorID),
		)
		c.JSON(http.StatusOK, res)
	}
}

func (h *ModerationHandler) runBulk(op bulk.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transitionRequest
		if c.Request.ContentLength != 0 && !bind(c, &req, binding.JSON) {
			return
		}
		in := model.Input{Reason: req.Reason, OperatorID: operatorID(c)}
		res, err := h.svc.Bulk(c.Request.Context(), op, in)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		recordBulk(op.Name, res.Succeeded, res.Failed)
		h.logger.Info("bulk operation finished",
			zap.String("operation", op.Name),
			zap.String("operator", in.OperatorID),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
			zap.Bool("cancelled", res.Cancelled),
		)
		c.JSON(http.StatusOK, res)
	}
}

// Rules handles GET /rules.
func (h *ModerationHandler) Rules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.svc.Rules()})
}

// operatorID returns the operator from the token claims, falling back to
// the operator header in open mode.
func operatorID(c *gin.Context) string {
	if claims := identity.OperatorFromCtx(c); claims != nil {
		return claims.OperatorID
	}
	return c.GetHeader(OperatorHeader)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

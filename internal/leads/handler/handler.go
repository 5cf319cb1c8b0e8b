package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lead_protection_backend/internal/leads/domain"
	"lead_protection_backend/internal/leads/service"
	"lead_protection_backend/internal/leads/transport"
	"lead_protection_backend/platform/httpkit"
	"lead_protection_backend/platform/validator"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Delete)
	rg.PATCH("/:id", h.UpdateDetails)
	rg.GET("/:id/protection", h.ProtectionStatus)
	rg.GET("/:id/activities", h.ListActivities)
	rg.POST("/:id/activities", h.RecordActivity)
	rg.PUT("/:id/contact", h.AttachContact)
	rg.PUT("/:id/stage", h.AdvanceStage)
	rg.POST("/:id/clock/stop", h.StopClock)
	rg.POST("/:id/clock/resume", h.ResumeClock)
	rg.POST("/:id/extend", h.Extend)
	rg.PUT("/:id/owner", h.Reassign)
	rg.POST("/:id/release", h.Release)
	rg.POST("/:id/collaborators", h.AddCollaborator)
	rg.DELETE("/:id/collaborators/:userId", h.RemoveCollaborator)
	rg.GET("/:id/audit", h.ListAudit)
}

func (h *Handler) Create(c *gin.Context) {
	ac, ok := accessContext(c)
	if !ok {
		return
	}
	var req transport.CreateLeadRequest
	if !h.bind(c, &req) {
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), ac, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) Get(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	lead, err := h.svc.Get(c.Request.Context(), ac, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) ProtectionStatus(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	status, err := h.svc.ProtectionStatus(c.Request.Context(), ac, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, status)
}

func (h *Handler) RecordActivity(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.RecordActivityRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.RecordActivity(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) ListActivities(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	items, err := h.svc.ListActivities(c.Request.Context(), ac, id, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, items)
}

func (h *Handler) AttachContact(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.ContactRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.AttachContact(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) AdvanceStage(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.AdvanceStageRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.AdvanceStage(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) UpdateDetails(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.UpdateDetailsRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.UpdateDetails(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) StopClock(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.StopClockRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.StopClock(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) ResumeClock(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	lead, err := h.svc.ResumeClock(c.Request.Context(), ac, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Extend(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.ExtendRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.Extend(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Reassign(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.ReassignRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.Reassign(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Release(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.ReleaseRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.Release(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Delete(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), ac, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddCollaborator(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	var req transport.CollaboratorRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.AddCollaborator(c.Request.Context(), ac, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) RemoveCollaborator(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "invalid user id")
		return
	}
	lead, err := h.svc.RemoveCollaborator(c.Request.Context(), ac, id, userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) ListAudit(c *gin.Context) {
	ac, id, ok := target(c)
	if !ok {
		return
	}
	records, err := h.svc.ListAudit(c.Request.Context(), ac, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, records)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return false
	}
	return true
}

// accessContext builds the caller's access context from the verified token.
func accessContext(c *gin.Context) (domain.AccessContext, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return domain.AccessContext{}, false
	}
	return domain.NewAccessContext(identity.UserID(), identity.Territories(), identity.Roles()), true
}

func target(c *gin.Context) (domain.AccessContext, uuid.UUID, bool) {
	ac, ok := accessContext(c)
	if !ok {
		return domain.AccessContext{}, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return domain.AccessContext{}, uuid.Nil, false
	}
	return ac, id, true
}

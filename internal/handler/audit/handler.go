package audit

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.ListLogs)
}

// ListLogs filters by user_id, entity_type, entity_id and action.
func (h *Handler) ListLogs(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var filters model.AuditLogFilters
	if err := handler.BindQuery(c, &filters); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filters.UserID, err = handler.OptionalUUIDQuery(c, "user_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filters.EntityID, err = handler.OptionalUUIDQuery(c, "entity_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	logs, err := h.service.List(c.Request.Context(), actor, &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page := filters.Pagination.Normalize()
	httputil.RespondWithList(c, logs, len(logs), page.Limit, page.Offset)
}

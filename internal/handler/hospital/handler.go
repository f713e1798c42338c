package hospital

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/hospital"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	svc *hospital.Service
}

func NewHandler(svc *hospital.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	hospitals := r.Group("/hospitals")
	{
		hospitals.GET("", h.List)
		hospitals.GET("/:id", h.Get)
		hospitals.POST("", h.Create)
	}
}

func (h *Handler) List(c *gin.Context) {
	emergencyOnly := false
	if raw := c.Query("emergency"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Validation("emergency must be a boolean"))
			return
		}
		emergencyOnly = v
	}

	items, err := h.svc.List(c.Request.Context(), emergencyOnly)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	item, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, item)
}

func (h *Handler) Create(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.CreateHospitalRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	item, err := h.svc.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, item)
}

package consultation

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/consultation"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	svc *consultation.Service
}

func NewHandler(svc *consultation.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consultations := r.Group("/consultations")
	{
		consultations.POST("", h.Create)
		consultations.GET("", h.List)
		consultations.GET("/:id", h.Get)
		consultations.DELETE("/:id", h.Archive)
		consultations.POST("/:id/accept", h.Accept)
		consultations.POST("/:id/reject", h.Reject)
		consultations.POST("/:id/complete", h.Complete)
		consultations.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.CreateConsultationRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	consultation, err := h.svc.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, consultation)
}

func (h *Handler) List(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var filters model.ConsultationFilters
	if err := handler.BindQuery(c, &filters); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filters.PatientID, err = handler.OptionalUUIDQuery(c, "patient_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filters.DoctorID, err = handler.OptionalUUIDQuery(c, "doctor_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	items, err := h.svc.List(c.Request.Context(), actor, &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page := filters.Pagination.Normalize()
	httputil.RespondWithList(c, items, len(items), page.Limit, page.Offset)
}

func (h *Handler) Get(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	consultation, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultation)
}

func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, nil, func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
		return h.svc.Accept(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Reject(c *gin.Context) {
	var req model.RejectConsultationRequest
	h.transition(c, &req, func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
		return h.svc.Reject(c.Request.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) Complete(c *gin.Context) {
	var req model.CompleteConsultationRequest
	h.transition(c, &req, func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
		return h.svc.Complete(c.Request.Context(), actor, id, req.ClosingNotes)
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	var req model.CancelConsultationRequest
	h.transition(c, &req, func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
		return h.svc.Cancel(c.Request.Context(), actor, id, req.Reason)
	})
}

// transition binds the optional body into req, then runs fn for the path consultation.
func (h *Handler) transition(
	c *gin.Context,
	req interface{},
	fn func(c *gin.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error),
) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if req != nil {
		if err := handler.BindJSON(c, req, true); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}

	consultation, err := fn(c, actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, consultation)
}

func (h *Handler) Archive(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	id, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.svc.Archive(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"archived": true})
}

package relationship

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	svc *relationship.Service
}

func NewHandler(svc *relationship.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	relationships := r.Group("/relationships")
	{
		relationships.POST("", h.Establish)
		relationships.GET("", h.List)
		relationships.GET("/check", h.Check)
		relationships.GET("/:id", h.Get)
		relationships.POST("/:id/terminate", h.Terminate)
		relationships.POST("/:id/suspend", h.Suspend)
		relationships.POST("/:id/deactivate", h.Deactivate)
		relationships.POST("/:id/reactivate", h.Reactivate)
	}
}

// Establish answers 201 for a new relationship and 200 when an existing one was returned.
func (h *Handler) Establish(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.EstablishRelationshipRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	rel, created, err := h.svc.Request(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httputil.Response{Status: httputil.StatusSuccess, Data: rel})
}

// List returns the caller's relationships. Admins name a patient_id or doctor_id.
func (h *Handler) List(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	patientID, err := handler.OptionalUUIDQuery(c, "patient_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	doctorID, err := handler.OptionalUUIDQuery(c, "doctor_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	var items []*model.DoctorPatientRelationship
	switch {
	case patientID != nil:
		items, err = h.svc.ListForPatient(ctx, actor, *patientID)
	case doctorID != nil:
		items, err = h.svc.ListForDoctor(ctx, actor, *doctorID)
	case actor.IsPatient():
		items, err = h.svc.ListForPatient(ctx, actor, actor.ID)
	case actor.IsDoctor():
		items, err = h.svc.ListForDoctor(ctx, actor, actor.ID)
	default:
		err = apperrors.Validation("patient_id or doctor_id is required")
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) Check(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	doctorID, err := handler.UUIDQuery(c, "doctor_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	patientID, err := handler.UUIDQuery(c, "patient_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.svc.Check(c.Request.Context(), actor, doctorID, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
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

	rel, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rel)
}

func (h *Handler) Terminate(c *gin.Context) {
	var req model.TerminateRelationshipRequest
	if err := handler.BindJSON(c, &req, true); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	h.lifecycle(c, func(actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
		return h.svc.Terminate(c.Request.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) Suspend(c *gin.Context) {
	h.lifecycle(c, func(actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
		return h.svc.Suspend(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.lifecycle(c, func(actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
		return h.svc.Deactivate(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Reactivate(c *gin.Context) {
	h.lifecycle(c, func(actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error) {
		return h.svc.Reactivate(c.Request.Context(), actor, id)
	})
}

func (h *Handler) lifecycle(c *gin.Context, fn func(actor model.Actor, id uuid.UUID) (*model.DoctorPatientRelationship, error)) {
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

	rel, err := fn(actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rel)
}

package emergency

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/emergency"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	svc *emergency.Service
}

func NewHandler(svc *emergency.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/consultations/:id/emergencies", h.Create)
	r.GET("/consultations/:id/emergencies", h.ListByConsultation)

	emergencies := r.Group("/emergencies")
	{
		emergencies.GET("/:id", h.Get)
		emergencies.DELETE("/:id", h.Archive)
		emergencies.GET("/:id/logs", h.Logs)
		emergencies.GET("/:id/contacts", h.Contacts)
		emergencies.POST("/:id/escalate", h.Escalate)
		emergencies.POST("/:id/ambulance", h.CallAmbulance)
		emergencies.POST("/:id/referral", h.Referral)
		emergencies.POST("/:id/resolve", h.Resolve)
		emergencies.POST("/:id/contacts", h.AddContact)
		emergencies.PATCH("/contacts/:contactId", h.RecordContactResponse)
	}
}

// target resolves the caller and the path ID, writing the error response on failure.
func target(c *gin.Context, param string) (model.Actor, uuid.UUID, bool) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return model.Actor{}, uuid.Nil, false
	}
	id, err := handler.UUIDParam(c, param)
	if err != nil {
		httputil.RespondWithError(c, err)
		return model.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, data)
}

func (h *Handler) Create(c *gin.Context) {
	actor, consultationID, ok := target(c, "id")
	if !ok {
		return
	}
	var req model.CreateEmergencyRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	e, err := h.svc.Create(c.Request.Context(), actor, consultationID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, e)
}

func (h *Handler) ListByConsultation(c *gin.Context) {
	actor, consultationID, ok := target(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListByConsultation(c.Request.Context(), actor, consultationID)
	respond(c, items, err)
}

func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.Get(c.Request.Context(), actor, id)
	respond(c, e, err)
}

func (h *Handler) Logs(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	logs, err := h.svc.Logs(c.Request.Context(), actor, id)
	respond(c, logs, err)
}

func (h *Handler) Contacts(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	contacts, err := h.svc.Contacts(c.Request.Context(), actor, id)
	respond(c, contacts, err)
}

func (h *Handler) Escalate(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	var req model.HospitalInfo
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	e, err := h.svc.EscalateToHospital(c.Request.Context(), actor, id, req)
	respond(c, e, err)
}

func (h *Handler) CallAmbulance(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	var req model.AmbulanceRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	e, err := h.svc.CallAmbulance(c.Request.Context(), actor, id, req.ETA)
	respond(c, e, err)
}

func (h *Handler) Referral(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.GenerateReferralLetter(c.Request.Context(), actor, id)
	respond(c, e, err)
}

func (h *Handler) Resolve(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	var req model.ResolveEmergencyRequest
	if err := handler.BindJSON(c, &req, true); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	e, err := h.svc.MarkResolved(c.Request.Context(), actor, id, req.Notes)
	respond(c, e, err)
}

func (h *Handler) AddContact(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	var req model.AddContactRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	contact, err := h.svc.AddContact(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, contact)
}

func (h *Handler) RecordContactResponse(c *gin.Context) {
	actor, contactID, ok := target(c, "contactId")
	if !ok {
		return
	}
	var req model.ContactResponseRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	contact, err := h.svc.RecordContactResponse(c.Request.Context(), actor, contactID, &req)
	respond(c, contact, err)
}

func (h *Handler) Archive(c *gin.Context) {
	actor, id, ok := target(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Archive(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"archived": true})
}

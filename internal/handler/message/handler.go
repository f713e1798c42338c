package message

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telemed-api/internal/handler"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/service/message"
	"github.com/jwalitptl/telemed-api/pkg/httputil"
)

type Handler struct {
	svc *message.Service
}

func NewHandler(svc *message.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/consultations/:id/messages", h.Send)
	r.GET("/consultations/:id/messages", h.List)
}

func (h *Handler) Send(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	consultationID, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var req model.SendMessageRequest
	if err := handler.BindJSON(c, &req, false); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), actor, consultationID, req.Body)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, msg)
}

func (h *Handler) List(c *gin.Context) {
	actor, err := handler.Actor(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	consultationID, err := handler.UUIDParam(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	var page model.Pagination
	if err := handler.BindQuery(c, &page); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	msgs, err := h.svc.List(c.Request.Context(), actor, consultationID, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page = page.Normalize()
	httputil.RespondWithList(c, msgs, len(msgs), page.Limit, page.Offset)
}

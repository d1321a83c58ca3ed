package patient

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/service/access"
	"github.com/jwalitptl/ehr-chainview/internal/service/research"
)

// Handler serves the patient dashboard: doctor access grants and research
// consent requests. Every write is signed by the session patient.
type Handler struct {
	access   access.Servicer
	research research.Servicer
}

func NewHandler(access access.Servicer, research research.Servicer) *Handler {
	return &Handler{access: access, research: research}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patient := r.Group("/patient")
	{
		patient.GET("/access", h.Access)
		patient.POST("/access/:action/prepare", h.PrepareAccess)
		patient.POST("/access/:action", h.SubmitAccess)

		patient.GET("/research", h.Research)
		patient.POST("/research/respond/prepare", h.PrepareRespond)
		patient.POST("/research/respond", h.Respond)
	}
}

func (h *Handler) Access(c *gin.Context) {
	st, err := h.access.Granted(c.Request.Context(), middleware.Wallet(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) PrepareAccess(c *gin.Context) {
	var req model.AccessRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	prepared, err := h.access.Prepare(c.Param("action"), common.HexToAddress(req.Doctor))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prepared)
}

func (h *Handler) SubmitAccess(c *gin.Context) {
	var req model.AccessSubmit
	if !handler.BindJSON(c, &req) {
		return
	}
	receipt, err := h.access.Submit(c.Request.Context(), c.Param("action"), middleware.Wallet(c), common.HexToAddress(req.Doctor), req.SignedTx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, handler.NewTxResponse(receipt))
}

func (h *Handler) Research(c *gin.Context) {
	st, err := h.research.Requests(c.Request.Context(), middleware.Wallet(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) PrepareRespond(c *gin.Context) {
	var req model.ConsentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	id, err := handler.GroupID(req.GroupID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	prepared, err := h.research.Prepare(id, *req.Grant)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prepared)
}

func (h *Handler) Respond(c *gin.Context) {
	var req model.ConsentSubmit
	if !handler.BindJSON(c, &req) {
		return
	}
	id, err := handler.GroupID(req.GroupID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	receipt, err := h.research.Respond(c.Request.Context(), middleware.Wallet(c), id, *req.Grant, req.SignedTx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, handler.NewTxResponse(receipt))
}

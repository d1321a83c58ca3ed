package hospital

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/service/hospital"
)

// Handler serves the hospital dashboard. The session wallet is the
// hospital.
type Handler struct {
	svc hospital.Servicer
}

func NewHandler(svc hospital.Servicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/hospital/doctors", h.Doctors)
}

func (h *Handler) Doctors(c *gin.Context) {
	st, err := h.svc.Doctors(c.Request.Context(), middleware.Wallet(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

package doctor

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/service/access"
)

type Handler struct {
	access access.Servicer
}

func NewHandler(access access.Servicer) *Handler {
	return &Handler{access: access}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/doctor/patients", h.Patients)
}

// Patients lists the patients that granted the session doctor access.
func (h *Handler) Patients(c *gin.Context) {
	st, err := h.access.Patients(c.Request.Context(), middleware.Wallet(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

package admin

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	adminsvc "github.com/jwalitptl/ehr-chainview/internal/service/admin"
	"github.com/jwalitptl/ehr-chainview/internal/service/analytics"
	"github.com/jwalitptl/ehr-chainview/internal/service/audit"
	"github.com/jwalitptl/ehr-chainview/internal/service/dashboard"
	"github.com/jwalitptl/ehr-chainview/internal/service/hospital"
	"github.com/jwalitptl/ehr-chainview/internal/service/role"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

// Handler serves the admin dashboard pages.
type Handler struct {
	hospitals hospital.Servicer
	roles     role.Servicer
	admins    adminsvc.Servicer
	audit     audit.Servicer
	dashboard dashboard.Servicer
	analytics analytics.Servicer
}

func NewHandler(hospitals hospital.Servicer, roles role.Servicer, admins adminsvc.Servicer, audit audit.Servicer, dashboard dashboard.Servicer, analytics analytics.Servicer) *Handler {
	return &Handler{
		hospitals: hospitals,
		roles:     roles,
		admins:    admins,
		audit:     audit,
		dashboard: dashboard,
		analytics: analytics,
	}
}

// RegisterRoutes expects r to be authenticated and limited to admins.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	{
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/audit", h.Audit)
		admin.GET("/analytics", h.Analytics)
		admin.GET("/search", h.Search)

		admin.GET("/hospitals", h.Hospitals)
		admin.GET("/hospital-doctors/:address", h.HospitalDoctors)
		admin.POST("/hospitals/deactivate/prepare", h.PrepareDeactivate)
		admin.POST("/hospitals/deactivate", h.Deactivate)

		admin.GET("/roles", h.Roles)
		admin.POST("/roles/:action/prepare", h.PrepareRole)
		admin.POST("/roles/:action", h.SubmitRole)

		admin.GET("/admins", h.Admins)
		admin.POST("/admins/:action/prepare", h.PrepareAdmin)
		admin.POST("/admins/:action", h.SubmitAdmin)
	}
}

func (h *Handler) Dashboard(c *gin.Context) {
	st, err := h.dashboard.Overview(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) Audit(c *gin.Context) {
	var filter model.AuditFilter
	if !handler.BindQuery(c, &filter) {
		return
	}
	st, err := h.audit.Log(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) Analytics(c *gin.Context) {
	var q model.AnalyticsQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	st, err := h.analytics.Analytics(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if q.Format != "csv" {
		handler.OK(c, st)
		return
	}
	filename := fmt.Sprintf("analytics_%d.csv", st.Block)
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	writer := csv.NewWriter(c.Writer)
	_ = writer.WriteAll(analyticsRecords(st.Data))
}

// analyticsRecords flattens the analytics page into metric, label, value
// rows.
func analyticsRecords(a views.Analytics) [][]string {
	rows := [][]string{
		{"metric", "label", "value"},
		{"hospitals", "", strconv.Itoa(a.Hospitals)},
		{"insurers", "", strconv.Itoa(a.Insurers)},
		{"researchers", "", strconv.Itoa(a.Researchers)},
		{"active", "", strconv.Itoa(a.Active)},
		{"suspended", "", strconv.Itoa(a.Suspended)},
	}
	for _, p := range views.Periods {
		series := a.Registrations[p.Name]
		for _, category := range model.AdminCategories {
			for i, n := range series[category] {
				label := fmt.Sprintf("%s-%d", p.Name, p.Buckets-1-i)
				rows = append(rows, []string{"registrations_" + string(category), label, strconv.Itoa(n)})
			}
		}
	}
	for _, l := range a.DoctorsPerHospital {
		rows = append(rows, []string{"doctors", l.Address.Hex(), strconv.Itoa(l.Doctors)})
	}
	return rows
}

func (h *Handler) Search(c *gin.Context) {
	var q model.SearchQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	st, err := h.analytics.Search(c.Request.Context(), q)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) Hospitals(c *gin.Context) {
	st, err := h.hospitals.Hospitals(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) HospitalDoctors(c *gin.Context) {
	addr, ok := handler.AddressParam(c, "address")
	if !ok {
		return
	}
	st, err := h.hospitals.Doctors(c.Request.Context(), addr)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) PrepareDeactivate(c *gin.Context) {
	var req model.HospitalRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	prepared, err := h.hospitals.PrepareDeactivate(common.HexToAddress(req.Hospital))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prepared)
}

func (h *Handler) Deactivate(c *gin.Context) {
	var req model.HospitalSubmit
	if !handler.BindJSON(c, &req) {
		return
	}
	receipt, err := h.hospitals.Deactivate(c.Request.Context(), middleware.Wallet(c), common.HexToAddress(req.Hospital), req.SignedTx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, handler.NewTxResponse(receipt))
}

func (h *Handler) Roles(c *gin.Context) {
	st, err := h.roles.Roles(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func (h *Handler) PrepareRole(c *gin.Context) {
	var req model.RoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	prepared, err := h.roles.Prepare(c.Param("action"), common.HexToHash(req.Role), common.HexToAddress(req.Account))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prepared)
}

func (h *Handler) SubmitRole(c *gin.Context) {
	var req model.RoleSubmit
	if !handler.BindJSON(c, &req) {
		return
	}
	receipt, err := h.roles.Submit(c.Request.Context(), c.Param("action"), middleware.Wallet(c),
		common.HexToHash(req.Role), common.HexToAddress(req.Account), req.SignedTx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, handler.NewTxResponse(receipt))
}

func (h *Handler) Admins(c *gin.Context) {
	var q model.AdminQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	st, err := h.admins.Admins(c.Request.Context(), model.AdminCategory(q.Category))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, st)
}

func change(action string, req model.AdminRequest) adminsvc.Change {
	return adminsvc.Change{
		Action:             strings.ToLower(action),
		Category:           model.AdminCategory(req.Category),
		Wallet:             common.HexToAddress(req.Wallet),
		Name:               req.Name,
		RegistrationNumber: req.RegistrationNumber,
		Active:             req.Active,
	}
}

func (h *Handler) PrepareAdmin(c *gin.Context) {
	var req model.AdminRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	prepared, err := h.admins.Prepare(change(c.Param("action"), req))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prepared)
}

func (h *Handler) SubmitAdmin(c *gin.Context) {
	var req model.AdminSubmit
	if !handler.BindJSON(c, &req) {
		return
	}
	receipt, err := h.admins.Submit(c.Request.Context(), middleware.Wallet(c), change(c.Param("action"), req.AdminRequest), req.SignedTx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, handler.NewTxResponse(receipt))
}

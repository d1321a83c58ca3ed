package router

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type chain struct{ up atomic.Bool }

func (c *chain) Connected() bool { return c.up.Load() }

func (c *chain) Status() model.ConnectionStatus {
	if c.up.Load() {
		return model.StatusConnected
	}
	return model.StatusDisconnected
}

func (c *chain) Head() uint64 { return 77 }

// routes registers GET and POST on prefix/ping.
type routes string

func (p routes) RegisterRoutes(r *gin.RouterGroup) {
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"wallet": middleware.Wallet(c).Hex()}) }
	r.GET(string(p)+"/ping", ok)
	r.POST(string(p)+"/ping", ok)
}

func (p routes) RegisterSessionRoutes(r *gin.RouterGroup) {
	r.GET("/auth/whoami", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func newRouter(t *testing.T) (*gin.Engine, *chain, auth.JWTService) {
	t.Helper()
	jwt := auth.NewJWTService("0123456789abcdef", "ehr", time.Hour)
	c := &chain{}
	reg := prometheus.NewRegistry()
	r := NewRouter(middleware.NewAuthMiddleware(jwt), c, Handlers{
		Health:    handler.NewHandler(c, reg),
		Auth:      routes("/auth"),
		Admin:     routes("/admin"),
		Hospital:  routes("/hospital"),
		Doctor:    routes("/doctor"),
		Patient:   routes("/patient"),
		Insurance: routes("/insurance"),
		Research:  routes("/research"),
	}, RouterConfig{
		CORSConfig:     middleware.DefaultCORSConfig(),
		RequestTimeout: time.Second,
		MetricsPrefix:  "test",
		Registerer:     reg,
	})
	r.Setup()
	return r.Engine(), c, jwt
}

func call(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDashboardsAreRoleGated(t *testing.T) {
	r, _, jwt := newRouter(t)
	token, _, err := jwt.GenerateToken(common.HexToAddress("0xd0"), model.RoleDoctor)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/doctor/ping", token).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/admin/ping", token).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/patient/ping", token).Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/auth/whoami", token).Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/v1/doctor/ping", "").Code)
}

func TestOrganisationDashboardsAreRoleGated(t *testing.T) {
	r, _, jwt := newRouter(t)
	insurer, _, err := jwt.GenerateToken(common.HexToAddress("0x11"), model.RoleInsurance)
	require.NoError(t, err)
	lab, _, err := jwt.GenerateToken(common.HexToAddress("0x22"), model.RoleResearch)
	require.NoError(t, err)

	w := call(r, http.MethodGet, "/api/v1/insurance/ping", insurer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), common.HexToAddress("0x11").Hex())
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/research/ping", insurer).Code)

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/research/ping", lab).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/insurance/ping", lab).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/admin/ping", lab).Code)
}

func TestPublicAuthRoutesSkipSession(t *testing.T) {
	r, c, _ := newRouter(t)
	c.up.Store(true)
	assert.Equal(t, http.StatusOK, call(r, http.MethodPost, "/api/v1/auth/ping", "").Code)
}

func TestWritesWaitForProvider(t *testing.T) {
	r, c, jwt := newRouter(t)
	token, _, err := jwt.GenerateToken(common.HexToAddress("0xb0"), model.RolePatient)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/patient/ping", token).Code)
	w := call(r, http.MethodPost, "/api/v1/patient/ping", token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c.up.Store(true)
	assert.Equal(t, http.StatusOK, call(r, http.MethodPost, "/api/v1/patient/ping", token).Code)
}

func TestHealth(t *testing.T) {
	r, c, _ := newRouter(t)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/health/live", "").Code)

	w := call(r, http.MethodGet, "/api/v1/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"head":77`)

	c.up.Store(true)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/health/ready", "").Code)

	w = call(r, http.MethodGet, "/api/v1/health/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_requests_total")
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	r, _, _ := newRouter(t)
	w := call(r, http.MethodGet, "/api/v1/health/live", "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

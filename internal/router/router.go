package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/ehr-chainview/internal/handler"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// SessionHandler serves routes any signed-in wallet may call.
type SessionHandler interface {
	Handler
	RegisterSessionRoutes(*gin.RouterGroup)
}

// Handlers are the per-dashboard route sets.
type Handlers struct {
	Health    *handler.Handler
	Auth      SessionHandler
	Admin     Handler
	Hospital  Handler
	Doctor    Handler
	Patient   Handler
	Insurance Handler
	Research  Handler
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	conn    middleware.Connectivity
	h       Handlers
	metrics *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	RequestTimeout   time.Duration
	MetricsPrefix    string
	// Registerer defaults to the prometheus default registry.
	Registerer prometheus.Registerer
}

func NewRouter(auth *middleware.AuthMiddleware, conn middleware.Connectivity, h Handlers, config RouterConfig) *Router {
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		conn:    conn,
		h:       h,
		metrics: initRouterMetrics(config.MetricsPrefix, config.Registerer),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		r.metricsMiddleware(),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	engine.Use(middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}))

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.setupHealthCheck(api)

	r.h.Auth.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(
		r.auth.Authenticate(),
		middleware.RequireConnected(r.conn),
	)
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.h.Health.LivenessCheck)
		health.GET("/ready", r.h.Health.ReadinessCheck)
		health.GET("/metrics", r.h.Health.MetricsHandler)
	}
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.h.Auth.RegisterSessionRoutes(rg)

	r.h.Admin.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RoleAdmin)))
	r.h.Hospital.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RoleHospital)))
	r.h.Doctor.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RoleDoctor)))
	r.h.Patient.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RolePatient)))
	r.h.Insurance.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RoleInsurance)))
	r.h.Research.RegisterRoutes(rg.Group("", r.auth.RequireRole(model.RoleResearch)))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) *routerMetrics {
	if prefix == "" {
		prefix = "http"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &routerMetrics{
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// ChainStatus is the view of the head watcher the health checks need.
type ChainStatus interface {
	Status() model.ConnectionStatus
	Head() uint64
}

// Handler serves the health and metrics endpoints.
type Handler struct {
	chain   ChainStatus
	metrics http.Handler
}

// NewHandler serves metrics from gatherer, or the default registry when nil.
func NewHandler(chain ChainStatus, gatherer prometheus.Gatherer) *Handler {
	metrics := promhttp.Handler()
	if gatherer != nil {
		metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return &Handler{chain: chain, metrics: metrics}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now(),
	})
}

// ReadinessCheck is ready once the provider is connected. A disconnected
// provider still serves views, so the body says which state it is in.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	status := h.chain.Status()
	code := http.StatusOK
	if status != model.StatusConnected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"head":   h.chain.Head(),
		"time":   time.Now(),
	})
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

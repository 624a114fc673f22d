package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/supervisor"
)

// StatusProvider reports the supervisor state.
type StatusProvider interface {
	Status() supervisor.Status
}

// Handlers serves the status routes
type Handlers struct {
	status  StatusProvider
	metrics *monitoring.Metrics
}

// NewHandlers creates status handlers
func NewHandlers(status StatusProvider, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{status: status, metrics: metrics}
}

// Health reports 200 while the source is being monitored and 503 otherwise
func (h *Handlers) Health(c *gin.Context) {
	st := h.status.Status()
	if st.State != supervisor.StateMonitoring.String() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"state":  st.State,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  st.State,
		"frozen": st.Frozen,
	})
}

// Status returns the supervisor snapshot with counters and check latency
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"supervisor":     h.status.Status(),
		"metrics":        h.metrics.Snapshot(),
		"uptime_seconds": int64(h.metrics.Uptime() / time.Second),
	})
}

package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCheck(t *testing.T) {
	m := NewMetrics()

	m.RecordCheck("content", 20*time.Millisecond)
	m.RecordCheck("content", 40*time.Millisecond)
	m.RecordCheck("unavailable", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("unavailable")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Checks)
	assert.Equal(t, int64(1), snap.Unavailable)
	assert.Equal(t, 3, snap.Latency.Count)
	assert.InDelta(t, 23.33, snap.Latency.MeanMs, 0.01)
	assert.Equal(t, 40.0, snap.Latency.MaxMs)
}

func TestStreakAndRestarts(t *testing.T) {
	m := NewMetrics()

	m.SetStreak(2, false)
	m.SetStreak(3, true)
	m.RecordRestart("cooldown_active")
	m.RecordRestart("restarted")
	m.RecordReconnect("failure")
	m.RecordReconnect("success")
	m.SetSupervisorState(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FreezeStreak))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrozenTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RestartsTotal.WithLabelValues("restarted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SupervisorState))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Frozen)
	assert.Equal(t, int64(1), snap.Restarts)
	assert.Equal(t, int64(1), snap.Reconnects)
}

func TestRecordRequest(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("GetSourceScreenshot", 5*time.Millisecond, nil)
	m.RecordRequest("GetSourceScreenshot", 5*time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GetSourceScreenshot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GetSourceScreenshot", "error")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordRestart("restarted")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.RestartsTotal.WithLabelValues("restarted")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordCheck("active", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `watchdog_checks_total{result="active"} 1`)
	assert.Contains(t, rec.Body.String(), "watchdog_uptime_seconds")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "204")))
}

func TestTimer(t *testing.T) {
	m := NewMetrics()

	d := NewTimer(m).Stop("inactive")

	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("inactive")))
}

func TestWindow(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, Summary{}, w.Summary())

	w.Add(10 * time.Millisecond)
	s := w.Summary()
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 10.0, s.MeanMs)
	assert.Zero(t, s.StdMs)

	for _, ms := range []int{20, 30, 40} {
		w.Add(time.Duration(ms) * time.Millisecond)
	}
	s = w.Summary()
	assert.Equal(t, 3, s.Count, "window keeps the most recent samples")
	assert.InDelta(t, 30.0, s.MeanMs, 1e-9)
	assert.InDelta(t, 10.0, s.StdMs, 1e-9)
	assert.Equal(t, 40.0, s.MaxMs)
	assert.Equal(t, 40.0, s.P95Ms)
}

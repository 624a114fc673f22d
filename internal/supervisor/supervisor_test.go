package supervisor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/capture-watchdog/internal/freeze"
	"github.com/GriffinCanCode/capture-watchdog/internal/health"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
	"github.com/GriffinCanCode/capture-watchdog/internal/remediation"
	"github.com/GriffinCanCode/capture-watchdog/tests/helpers/testutil"
)

const source = "Safari"

func screenshot(frame string) string {
	raw := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), frame...)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

// newFakeServer returns a fake whose source renders the frame held in frame.
func newFakeServer(t *testing.T, frame *atomic.Value) *testutil.FakeOBS {
	t.Helper()
	f := testutil.NewFakeOBS(t)
	f.HandleStatic(obsws.ReqGetVersion, testutil.OK(map[string]any{
		"obsVersion":          "30.2.0",
		"obsWebSocketVersion": "5.5.0",
		"rpcVersion":          1,
		"platform":            "macos",
	}))
	f.HandleStatic(obsws.ReqGetInputList, testutil.OK(map[string]any{"inputs": []any{
		map[string]any{"inputName": "Mic", "inputKind": "coreaudio_input_capture"},
		map[string]any{"inputName": source, "inputKind": "screen_capture"},
	}}))
	f.Handle(obsws.ReqGetSourceScreenshot, func(json.RawMessage) testutil.FakeResponse {
		return testutil.OK(map[string]any{"imageData": screenshot(frame.Load().(string))})
	})
	f.HandleStatic(obsws.ReqGetInputSettings, testutil.OK(map[string]any{
		"inputKind":     "screen_capture",
		"inputSettings": map[string]any{"type": 0, "display": 1},
	}))
	f.HandleStatic(obsws.ReqSetInputSettings, testutil.OK(nil))
	return f
}

type fixture struct {
	sup     *Supervisor
	metrics *monitoring.Metrics
}

func newSupervisor(t *testing.T, f *testutil.FakeOBS, mutate ...func(*Options)) fixture {
	t.Helper()

	metrics := monitoring.NewMetrics()
	opts := Options{
		Source:            source,
		Interval:          20 * time.Millisecond,
		MaxReconnectDelay: 40 * time.Millisecond,
		Dial: OBSDialer(obsws.Options{
			Host:             f.Host(),
			Port:             f.Port(),
			HandshakeTimeout: time.Second,
			RequestTimeout:   time.Second,
			Observer:         metrics.RecordRequest,
		}),
		Checker:  health.NewScreenshotChecker(160, 90),
		Detector: freeze.NewDetector(2),
		Restarter: remediation.NewController(remediation.NewGate(time.Hour, nil), remediation.Options{
			Source:      source,
			SettleDelay: time.Millisecond,
		}),
		Metrics: metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}

	sup, err := New(opts)
	require.NoError(t, err)
	return fixture{sup: sup, metrics: metrics}
}

func start(t *testing.T, sup *Supervisor) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	var once atomic.Bool
	var result error
	cancel = func() error {
		if once.CompareAndSwap(false, true) {
			stop()
			select {
			case result = <-errCh:
			case <-time.After(3 * time.Second):
				t.Error("supervisor did not stop")
			}
		}
		return result
	}
	t.Cleanup(func() { _ = cancel() })
	return cancel
}

func movingFrames(t *testing.T, frame *atomic.Value) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(5 * time.Millisecond):
				frame.Store("frame-" + time.Now().Format(time.RFC3339Nano))
			}
		}
	}()
}

func TestInitialConnectFailureIsFatal(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	f := testutil.NewFakeOBS(t)
	fx := newSupervisor(t, f, func(o *Options) {
		o.Dial = OBSDialer(obsws.Options{Host: "127.0.0.1", Port: port, HandshakeTimeout: time.Second})
	})

	err = fx.sup.Run(context.Background())

	assert.ErrorIs(t, err, obsws.ErrUnreachable)
	assert.Equal(t, "disconnected", fx.sup.Status().State)
}

func TestAuthRejectedIsFatal(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	f := newFakeServer(t, &frame)
	f.Password = "secret"
	fx := newSupervisor(t, f)

	err := fx.sup.Run(context.Background())

	assert.ErrorIs(t, err, obsws.ErrAuthRejected)
}

func TestMissingSourceIsFatal(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f, func(o *Options) { o.Source = "Chrome" })

	err := fx.sup.Run(context.Background())

	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.Empty(t, f.RequestsOf(obsws.ReqGetSourceScreenshot), "no sampling before validation passes")
}

func TestReachesMonitoringWithoutAuthentication(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	movingFrames(t, &frame)
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f)

	stop := start(t, fx.sup)

	require.Eventually(t, func() bool { return fx.sup.Status().State == "monitoring" }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, f.Identifies(), 1)
	assert.NotContains(t, f.Identifies()[0], "authentication")

	require.Eventually(t, func() bool { return fx.sup.Status().Checks >= 3 }, 2*time.Second, 5*time.Millisecond)
	st := fx.sup.Status()
	assert.Equal(t, "30.2.0", st.ServerVersion)
	assert.Equal(t, "screenshot", st.Strategy)

	assert.NoError(t, stop())
	assert.Equal(t, "shutting_down", fx.sup.Status().State)
}

func TestFrozenSourceIsRestartedOnce(t *testing.T) {
	var frame atomic.Value
	frame.Store("stuck")
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f)

	stop := start(t, fx.sup)

	require.Eventually(t, func() bool {
		return fx.sup.Status().LastOutcome == remediation.Restarted.String()
	}, 2*time.Second, 5*time.Millisecond)

	sets := f.RequestsOf(obsws.ReqSetInputSettings)
	require.Len(t, sets, 2)
	var toggle, restore struct {
		InputName     string         `json:"inputName"`
		InputSettings map[string]any `json:"inputSettings"`
		Overlay       bool           `json:"overlay"`
	}
	require.NoError(t, json.Unmarshal(sets[0].Data, &toggle))
	require.NoError(t, json.Unmarshal(sets[1].Data, &restore))
	assert.Equal(t, source, toggle.InputName)
	assert.EqualValues(t, 1, toggle.InputSettings["type"])
	assert.EqualValues(t, 0, restore.InputSettings["type"])
	assert.EqualValues(t, 1, restore.InputSettings["display"])
	assert.True(t, restore.Overlay)

	// Still frozen, but the cooldown holds further restarts back.
	require.Eventually(t, func() bool {
		return fx.sup.Status().LastOutcome == remediation.CooldownActive.String()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, f.RequestsOf(obsws.ReqSetInputSettings), 2)
	assert.False(t, fx.sup.Status().LastRestart.IsZero())
	assert.Greater(t, fx.sup.Status().CooldownRemaining, time.Duration(0))

	assert.NoError(t, stop())
	assert.Equal(t, int64(1), fx.metrics.Snapshot().Restarts)
}

func TestUnavailableSamplesDoNotCount(t *testing.T) {
	var frame atomic.Value
	frame.Store("stuck")
	f := newFakeServer(t, &frame)
	f.HandleStatic(obsws.ReqGetSourceScreenshot, testutil.Fail(702, "Failed to render screenshot"))
	fx := newSupervisor(t, f)

	stop := start(t, fx.sup)

	require.Eventually(t, func() bool { return fx.sup.Status().Checks >= 5 }, 2*time.Second, 5*time.Millisecond)
	st := fx.sup.Status()
	assert.Equal(t, 0, st.Streak)
	assert.Equal(t, "unavailable", st.LastObservation)
	assert.Empty(t, f.RequestsOf(obsws.ReqSetInputSettings))
	assert.Equal(t, "monitoring", st.State)

	assert.NoError(t, stop())
	assert.GreaterOrEqual(t, fx.metrics.Snapshot().Unavailable, int64(5))
}

func TestReconnectsAfterSessionLoss(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	movingFrames(t, &frame)
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f)

	stop := start(t, fx.sup)
	require.Eventually(t, func() bool { return fx.sup.Status().State == "monitoring" }, 2*time.Second, 5*time.Millisecond)

	f.DropConnections()

	require.Eventually(t, func() bool {
		return f.Accepted() >= 2 && fx.sup.Status().State == "monitoring"
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), fx.sup.Status().Reconnects)
	assert.NoError(t, stop())
}

func TestServerExitTriggersReconnect(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	movingFrames(t, &frame)
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f)

	stop := start(t, fx.sup)
	require.Eventually(t, func() bool { return f.Accepted() == 1 && fx.sup.Status().State == "monitoring" }, 2*time.Second, 5*time.Millisecond)

	f.Broadcast(map[string]any{"op": 5, "d": map[string]any{"eventType": EventExitStarted, "eventIntent": 1}})

	require.Eventually(t, func() bool { return f.Accepted() >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.NoError(t, stop())
}

func TestShutdownInterruptsReconnectBackoff(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	movingFrames(t, &frame)
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f, func(o *Options) {
		o.Interval = 20 * time.Millisecond
		o.MaxReconnectDelay = time.Hour
	})

	stop := start(t, fx.sup)
	require.Eventually(t, func() bool { return fx.sup.Status().State == "monitoring" }, 2*time.Second, 5*time.Millisecond)

	f.Close()
	require.Eventually(t, func() bool { return fx.sup.Status().State != "monitoring" }, 2*time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked on reconnect")
	}
}

func TestRestartOnce(t *testing.T) {
	var frame atomic.Value
	frame.Store("a")
	f := newFakeServer(t, &frame)
	fx := newSupervisor(t, f)

	res, err := fx.sup.RestartOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, remediation.Restarted, res.Outcome)
	assert.Len(t, f.RequestsOf(obsws.ReqSetInputSettings), 2)
	assert.Empty(t, f.RequestsOf(obsws.ReqGetSourceScreenshot))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Source: source})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "validating", StateValidating.String())
	assert.Equal(t, "unknown", State(99).String())
}

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/config"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
	"github.com/GriffinCanCode/capture-watchdog/tests/helpers/testutil"
)

func configFor(f *testutil.FakeOBS) *config.Config {
	cfg := config.Default()
	cfg.Source.Name = "Display"
	cfg.OBS.Host = f.Host()
	cfg.OBS.Port = f.Port()
	cfg.OBS.Password = f.Password
	cfg.Remediation.SettleDelay = config.Duration(time.Millisecond)
	return cfg
}

func fakeServer(t *testing.T, setStatus testutil.FakeResponse) *testutil.FakeOBS {
	t.Helper()
	f := testutil.NewFakeOBS(t)
	f.HandleStatic(obsws.ReqGetVersion, testutil.OK(map[string]any{"obsVersion": "30.2.0"}))
	f.HandleStatic(obsws.ReqGetInputList, testutil.OK(map[string]any{"inputs": []any{
		map[string]any{"inputName": "Display", "inputKind": "screen_capture"},
	}}))
	f.HandleStatic(obsws.ReqGetInputSettings, testutil.OK(map[string]any{
		"inputKind":     "screen_capture",
		"inputSettings": map[string]any{"type": 1},
	}))
	f.HandleStatic(obsws.ReqSetInputSettings, setStatus)
	return f
}

func TestRestartOnceExitCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	tests := []struct {
		name      string
		setStatus testutil.FakeResponse
		wantCode  int
	}{
		{name: "restarted", setStatus: testutil.OK(nil), wantCode: 0},
		{name: "restart failed", setStatus: testutil.Fail(600, "resource not found"), wantCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fakeServer(t, tt.setStatus)
			metrics := monitoring.NewMetrics()

			sup, err := newSupervisor(configFor(f), metrics, nil, logging.NewNop())
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			assert.Equal(t, tt.wantCode, restart(ctx, sup, logging.NewNop()))
			assert.Len(t, f.RequestsOf(obsws.ReqSetInputSettings), 2)
		})
	}
}

func TestRestartOnceMissingSource(t *testing.T) {
	f := fakeServer(t, testutil.OK(nil))
	cfg := configFor(f)
	cfg.Source.Name = "Webcam"

	sup, err := newSupervisor(cfg, monitoring.NewMetrics(), nil, logging.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, restart(context.Background(), sup, logging.NewNop()))
	assert.Empty(t, f.RequestsOf(obsws.ReqSetInputSettings))
}

func TestNewSupervisorRejectsUnknownStrategy(t *testing.T) {
	f := fakeServer(t, testutil.OK(nil))
	cfg := configFor(f)
	cfg.Monitor.Strategy = "histogram"

	_, err := newSupervisor(cfg, monitoring.NewMetrics(), nil, logging.NewNop())
	assert.Error(t, err)
}

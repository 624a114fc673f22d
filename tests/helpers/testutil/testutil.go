// Package testutil provides testing utilities and helpers for watchdog tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockSettingsClient is a mock of the settings calls the restart sequence makes.
type MockSettingsClient struct {
	mock.Mock
}

// GetInputSettings mocks the GetInputSettings method.
func (m *MockSettingsClient) GetInputSettings(ctx context.Context, input string) (map[string]any, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// SetInputSettings mocks the SetInputSettings method.
func (m *MockSettingsClient) SetInputSettings(ctx context.Context, input string, settings map[string]any) error {
	args := m.Called(ctx, input, settings)
	return args.Error(0)
}

// NewMockSettingsClient creates a mock whose calls succeed by default and
// report the given settings.
func NewMockSettingsClient(t *testing.T, settings map[string]any) *MockSettingsClient {
	t.Helper()
	m := new(MockSettingsClient)

	m.On("GetInputSettings", mock.Anything, mock.Anything).
		Return(settings, nil).
		Maybe()
	m.On("SetInputSettings", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Maybe()

	return m
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time { return c.now }

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

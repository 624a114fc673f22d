package remediation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
)

const (
	// DefaultToggleField is the capture mode setting of display/window capture
	// sources.
	DefaultToggleField = "type"
	// DefaultSettleDelay is the pause between the toggle and the restore.
	DefaultSettleDelay = 500 * time.Millisecond

	restoreTimeout = 10 * time.Second
)

var (
	ErrCooldownActive = errors.New("restart cooldown active")
	ErrNotToggleable  = errors.New("setting cannot be toggled")
)

// Outcome is the result of a restart attempt
type Outcome int

const (
	CooldownActive Outcome = iota
	SettingsUnavailable
	RestartFailed
	Restarted
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case CooldownActive:
		return "cooldown_active"
	case SettingsUnavailable:
		return "settings_unavailable"
	case RestartFailed:
		return "restart_failed"
	case Restarted:
		return "restarted"
	default:
		return "unknown"
	}
}

// SettingsClient is the subset of the control session the restart uses.
type SettingsClient interface {
	GetInputSettings(ctx context.Context, input string) (map[string]any, error)
	SetInputSettings(ctx context.Context, input string, settings map[string]any) error
}

// SourceDescriptor is a source and the settings read before a restart.
type SourceDescriptor struct {
	Name     string
	Settings map[string]any
}

// Result describes one restart attempt.
type Result struct {
	Outcome   Outcome
	Err       error
	Source    SourceDescriptor
	Remaining time.Duration
	Took      time.Duration
}

// Options configures a Controller.
type Options struct {
	Source      string
	ToggleField string
	SettleDelay time.Duration
	Logger      *logging.Logger
}

// Controller runs the toggle-and-restore restart sequence. It is not safe for
// concurrent AttemptRestart calls; the supervisor serializes them.
type Controller struct {
	gate   *Gate
	opts   Options
	logger *logging.Logger
}

// NewController creates a restart controller around gate.
func NewController(gate *Gate, opts Options) *Controller {
	if opts.ToggleField == "" {
		opts.ToggleField = DefaultToggleField
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Controller{
		gate:   gate,
		opts:   opts,
		logger: opts.Logger.With(zap.String("source", opts.Source)),
	}
}

// Gate returns the cooldown gate.
func (c *Controller) Gate() *Gate { return c.gate }

// AttemptRestart restarts the source unless the cooldown is active. A failed
// attempt is not retried; the next frozen verdict triggers another.
func (c *Controller) AttemptRestart(ctx context.Context, client SettingsClient) Result {
	start := c.gate.Now()
	res := Result{Source: SourceDescriptor{Name: c.opts.Source}}

	if remaining := c.gate.Remaining(); remaining > 0 {
		c.logger.Info("Restart cooldown active", zap.Duration("remaining", remaining))
		res.Outcome = CooldownActive
		res.Err = ErrCooldownActive
		res.Remaining = remaining
		return res
	}

	c.logger.Info(strings.Repeat("-", 50))
	c.logger.Info("Restarting capture source", zap.Time("time", start))

	settings, err := client.GetInputSettings(ctx, c.opts.Source)
	if err != nil {
		c.logger.Error("Failed to get source settings", zap.Error(err))
		res.Outcome = SettingsUnavailable
		res.Err = err
		return res
	}
	res.Source.Settings = maps.Clone(settings)
	c.logger.Debug("Current settings", zap.Any("settings", settings))

	field := c.opts.ToggleField
	original, present := settings[field]
	if !present {
		// The restore then writes field: 0, a key the source did not report.
		c.logger.Debug("Toggle field missing from settings, treating it as 0", zap.String("field", field))
		original = 0
	}
	alternate, err := Toggle(original)
	if err != nil {
		c.logger.Error("Restart failed", zap.String("field", field), zap.Error(err))
		res.Outcome = RestartFailed
		res.Err = err
		return res
	}

	toggled := maps.Clone(settings)
	if toggled == nil {
		toggled = map[string]any{}
	}
	toggled[field] = alternate
	if err := client.SetInputSettings(ctx, c.opts.Source, toggled); err != nil {
		c.logger.Warn("Toggle apply failed, restoring anyway", zap.String("field", field), zap.Error(err))
	}

	c.settle(ctx)

	// Restore even when shutting down so the source is not left toggled.
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	restored := maps.Clone(toggled)
	restored[field] = original
	if err := client.SetInputSettings(restoreCtx, c.opts.Source, restored); err != nil {
		c.logger.Error("Restart failed", zap.Error(err))
		res.Outcome = RestartFailed
		res.Err = fmt.Errorf("restore %s: %w", field, err)
		res.Took = c.gate.Now().Sub(start)
		return res
	}

	restoredAt := c.gate.Now()
	c.gate.Record(restoredAt)
	res.Outcome = Restarted
	res.Took = restoredAt.Sub(start)
	c.logger.Info("Restart successful", zap.Duration("took", res.Took))
	return res
}

func (c *Controller) settle(ctx context.Context) {
	if c.opts.SettleDelay == 0 {
		return
	}
	t := time.NewTimer(c.opts.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Toggle returns the alternate value of a two-state setting: booleans are
// negated, numbers flip between 0 and 1.
func Toggle(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return 1, nil
	case bool:
		return !x, nil
	case float64:
		return flip(x == 0), nil
	case float32:
		return flip(x == 0), nil
	case int:
		return flip(x == 0), nil
	case int64:
		return flip(x == 0), nil
	case int32:
		return flip(x == 0), nil
	case uint:
		return flip(x == 0), nil
	case uint64:
		return flip(x == 0), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotToggleable, v)
	}
}

func flip(isZero bool) int {
	if isZero {
		return 1
	}
	return 0
}

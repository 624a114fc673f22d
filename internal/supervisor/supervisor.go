package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/capture-watchdog/internal/freeze"
	"github.com/GriffinCanCode/capture-watchdog/internal/health"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
	"github.com/GriffinCanCode/capture-watchdog/internal/remediation"
)

// ErrSourceNotFound means the watched source is not among the server's inputs.
var ErrSourceNotFound = errors.New("source not found")

// State is the supervisor lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateValidating
	StateMonitoring
	StateShuttingDown
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateValidating:
		return "validating"
	case StateMonitoring:
		return "monitoring"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session is the control session as the supervisor uses it.
type Session interface {
	health.Client
	remediation.SettingsClient

	GetVersion(ctx context.Context) (*obsws.Version, error)
	GetInputList(ctx context.Context) ([]obsws.Input, error)
	Events() <-chan obsws.Event
	Done() <-chan struct{}
	Err() error
	Close()
}

// Dialer opens a new session.
type Dialer func(ctx context.Context) (Session, error)

// OBSDialer dials the control server with obsws.
func OBSDialer(opts obsws.Options) Dialer {
	return func(ctx context.Context) (Session, error) {
		s, err := obsws.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Options configures a Supervisor.
type Options struct {
	Source            string
	Interval          time.Duration
	MaxReconnectDelay time.Duration

	Dial      Dialer
	Checker   health.Checker
	Detector  *freeze.Detector
	Restarter *remediation.Controller
	Metrics   *monitoring.Metrics
	Tracer    *tracing.Tracer
	Logger    *logging.Logger
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State             string        `json:"state"`
	Source            string        `json:"source"`
	Strategy          string        `json:"strategy"`
	ServerVersion     string        `json:"server_version,omitempty"`
	ConnectedSince    time.Time     `json:"connected_since,omitempty"`
	Checks            int64         `json:"checks"`
	LastCheck         time.Time     `json:"last_check,omitempty"`
	LastObservation   string        `json:"last_observation,omitempty"`
	Streak            int           `json:"streak"`
	Threshold         int           `json:"threshold"`
	Frozen            bool          `json:"frozen"`
	LastRestart       time.Time     `json:"last_restart,omitempty"`
	LastOutcome       string        `json:"last_outcome,omitempty"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ns"`
	Reconnects        int64         `json:"reconnects"`
}

// Supervisor runs the connect, validate, monitor cycle for one source.
type Supervisor struct {
	opts      Options
	dial      Dialer
	checker   health.Checker
	detector  *freeze.Detector
	restarter *remediation.Controller
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	logger    *logging.Logger

	breaker *resilience.Breaker
	backoff *resilience.Backoff

	unavailableLog *rate.Sometimes
	reconnectLog   *rate.Sometimes

	mu     sync.RWMutex
	status Status
}

// New creates a supervisor.
func New(opts Options) (*Supervisor, error) {
	switch {
	case opts.Source == "":
		return nil, errors.New("supervisor: source is required")
	case opts.Dial == nil:
		return nil, errors.New("supervisor: dialer is required")
	case opts.Checker == nil:
		return nil, errors.New("supervisor: checker is required")
	case opts.Detector == nil:
		return nil, errors.New("supervisor: detector is required")
	case opts.Restarter == nil:
		return nil, errors.New("supervisor: restarter is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxReconnectDelay < opts.Interval {
		opts.MaxReconnectDelay = opts.Interval
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.New("watchdog", logging.NewNop())
	}

	logger := opts.Logger.With(zap.String("source", opts.Source))
	s := &Supervisor{
		opts:           opts,
		dial:           opts.Dial,
		checker:        opts.Checker,
		detector:       opts.Detector,
		restarter:      opts.Restarter,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		logger:         logger,
		backoff:        resilience.NewBackoff(opts.Interval, opts.MaxReconnectDelay),
		unavailableLog: logging.Throttle(time.Minute),
		reconnectLog:   logging.Throttle(time.Minute),
		status: Status{
			State:     StateDisconnected.String(),
			Source:    opts.Source,
			Strategy:  opts.Checker.Name(),
			Threshold: opts.Detector.Threshold(),
		},
	}
	s.breaker = resilience.New("obs", resilience.Settings{
		Timeout: opts.MaxReconnectDelay,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("Reconnect breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	st.CooldownRemaining = s.restarter.Gate().Remaining()
	return st
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	prev := s.status.State
	s.status.State = state.String()
	s.mu.Unlock()

	s.metrics.SetSupervisorState(int(state))
	if prev != state.String() {
		s.logger.Debug("State changed", zap.String("from", prev), zap.String("to", state.String()))
	}
}

func (s *Supervisor) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/health"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
	"github.com/GriffinCanCode/capture-watchdog/internal/remediation"
)

var (
	errSessionLost   = errors.New("session lost")
	errServerExiting = errors.New("server is shutting down")
)

// Run connects, validates the source and monitors it until ctx is cancelled.
// A failed first connection or a missing source on first validation is
// returned as an error; everything after that is recovered locally.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("Starting capture watchdog",
		zap.String("strategy", s.checker.Name()),
		zap.Duration("interval", s.opts.Interval),
		zap.Int("threshold", s.detector.Threshold()),
		zap.Duration("cooldown", s.restarter.Gate().Cooldown()),
	)

	sess, err := s.connect(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}
	if err := s.validate(ctx, sess); err != nil {
		sess.Close()
		s.setState(StateDisconnected)
		return err
	}

	for {
		err := s.monitor(ctx, sess)
		sess.Close()
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}

		s.logger.Warn("Lost connection to control server, reconnecting", zap.Error(err))
		s.update(func(st *Status) { st.ConnectedSince = time.Time{} })

		sess, err = s.reconnect(ctx)
		if err != nil {
			s.shutdown()
			return nil
		}
	}
}

// RestartOnce connects, validates and runs a single restart attempt.
func (s *Supervisor) RestartOnce(ctx context.Context) (remediation.Result, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return remediation.Result{}, fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	if err := s.validate(ctx, sess); err != nil {
		return remediation.Result{}, err
	}
	res := s.restarter.AttemptRestart(ctx, sess)
	s.recordRestart(res)
	return res, nil
}

func (s *Supervisor) connect(ctx context.Context) (Session, error) {
	s.setState(StateConnecting)
	sess, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Connected to control server")
	return sess, nil
}

// validate probes the server and checks the source exists.
func (s *Supervisor) validate(ctx context.Context, sess Session) error {
	s.setState(StateValidating)

	if v, err := sess.GetVersion(ctx); err != nil {
		s.logger.Warn("Version probe failed", zap.Error(err))
	} else {
		s.logger.Info("Control server version",
			zap.String("obs_version", v.ObsVersion),
			zap.String("websocket_version", v.ObsWebSocketVersion),
			zap.String("platform", v.Platform),
		)
		s.update(func(st *Status) { st.ServerVersion = v.ObsVersion })
	}

	inputs, err := sess.GetInputList(ctx)
	if err != nil {
		return fmt.Errorf("list inputs: %w", err)
	}
	for _, in := range inputs {
		if in.InputName == s.opts.Source {
			s.logger.Info("Found source", zap.String("kind", in.InputKind))
			s.update(func(st *Status) { st.ConnectedSince = time.Now() })
			return nil
		}
	}

	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		names = append(names, in.InputName)
	}
	s.logger.Error("Source not found", zap.Strings("available", names))
	return fmt.Errorf("%w: %q", ErrSourceNotFound, s.opts.Source)
}

// reconnect retries until a session validates or ctx is cancelled.
func (s *Supervisor) reconnect(ctx context.Context) (Session, error) {
	for {
		s.setState(StateDisconnected)

		delay := s.backoff.Next()
		s.logger.Debug("Waiting before reconnect", zap.Duration("delay", delay), zap.Int("attempt", s.backoff.Attempt()))
		if !resilience.Sleep(ctx, delay) {
			return nil, ctx.Err()
		}

		sess, err := resilience.Call(s.breaker, func() (Session, error) {
			sess, err := s.connect(ctx)
			if err != nil {
				return nil, err
			}
			if err := s.validate(ctx, sess); err != nil {
				sess.Close()
				return nil, err
			}
			return sess, nil
		})
		if ctx.Err() != nil {
			if sess != nil {
				sess.Close()
			}
			return nil, ctx.Err()
		}
		if err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
				s.metrics.RecordReconnect("skipped")
				continue
			}
			s.metrics.RecordReconnect("failure")
			s.reconnectLog.Do(func() {
				s.logger.Warn("Reconnect failed", zap.Error(err), zap.Int("attempt", s.backoff.Attempt()))
			})
			continue
		}

		s.backoff.Reset()
		s.metrics.RecordReconnect("success")
		s.update(func(st *Status) { st.Reconnects++ })
		s.logger.Info("Reconnected to control server")
		return sess, nil
	}
}

// monitor ticks until ctx is cancelled (nil) or the session is lost (error).
func (s *Supervisor) monitor(ctx context.Context, sess Session) error {
	s.setState(StateMonitoring)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	events := sess.Events()
	for {
		if err := s.tick(ctx, sess); err != nil {
			return err
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sess.Done():
				return sessionErr(sess)
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if err := s.handleEvent(ev); err != nil {
					return err
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}

type checkResult struct {
	obs health.Observation
	err error
}

// tick runs one check and, on a frozen verdict, one restart attempt. The
// check runs on its own goroutine; its result is handed back exactly once.
func (s *Supervisor) tick(ctx context.Context, sess Session) error {
	if ctx.Err() != nil {
		return nil
	}

	s.update(func(st *Status) { st.Checks++; st.LastCheck = time.Now() })
	check := s.Status().Checks

	span, ctx := s.tracer.StartSpan(ctx, "tick")
	defer func() {
		span.Finish()
		s.tracer.Submit(span)
	}()
	logger := s.logger.With(append(span.Fields(), zap.Int64("check", check))...)

	checkSpan, checkCtx := s.tracer.StartSpan(ctx, "check")
	checkSpan.SetTag("strategy", s.checker.Name())
	timer := monitoring.NewTimer(s.metrics)
	results := make(chan checkResult, 1)
	go func() {
		obs, err := s.checker.Check(context.WithoutCancel(checkCtx), sess, s.opts.Source)
		results <- checkResult{obs: obs, err: err}
	}()

	var r checkResult
	select {
	case r = <-results:
	case <-ctx.Done():
		logger.Info("Shutdown requested, waiting for in-flight check")
		r = <-results
	}

	checkSpan.Finish()
	if r.err != nil {
		checkSpan.SetError(r.err)
	} else {
		checkSpan.SetTag("result", r.obs.Kind.String())
	}
	s.tracer.Submit(checkSpan)

	if r.err != nil {
		timer.Stop("unavailable")
		s.update(func(st *Status) { st.LastObservation = "unavailable" })
		s.unavailableLog.Do(func() {
			logger.Warn("Sample unavailable, not counted toward freeze", zap.Error(r.err))
		})
		if obsws.IsTransportError(r.err) {
			return r.err
		}
		return nil
	}
	took := timer.Stop(r.obs.Kind.String())

	prev := s.detector.State().Streak
	verdict := s.detector.Observe(r.obs)
	s.metrics.SetStreak(verdict.Streak, verdict.Frozen)
	s.update(func(st *Status) {
		st.LastObservation = r.obs.Kind.String()
		st.Streak = verdict.Streak
		st.Frozen = verdict.Frozen
	})

	threshold := s.detector.Threshold()
	switch {
	case r.obs.Kind == health.KindContent:
		logger.Info("Check",
			zap.String("fingerprint", r.obs.Fingerprint.String()),
			zap.Int("streak", verdict.Streak),
			zap.Duration("took", took),
		)
	case r.obs.Kind == health.KindInactive:
		logger.Warn("Source appears inactive", zap.Int("failure", verdict.Streak), zap.Int("threshold", threshold))
	case prev > 0:
		logger.Info("Source is active again", zap.Int("inactive_checks", prev))
	default:
		logger.Info("Source is active and healthy")
	}

	if !verdict.Frozen || ctx.Err() != nil {
		return nil
	}

	logger.Warn("Capture issue detected, attempting restart", zap.Int("streak", verdict.Streak))
	restartSpan, restartCtx := s.tracer.StartSpan(ctx, "restart")
	res := s.restarter.AttemptRestart(restartCtx, sess)
	restartSpan.SetTag("outcome", res.Outcome.String())
	if res.Err != nil && res.Outcome != remediation.CooldownActive {
		restartSpan.SetError(res.Err)
	}
	restartSpan.Finish()
	s.tracer.Submit(restartSpan)
	s.recordRestart(res)

	switch res.Outcome {
	case remediation.Restarted:
		s.detector.Reset()
		s.metrics.SetStreak(0, false)
		s.update(func(st *Status) { st.Streak = 0; st.Frozen = false })
		logger.Info("Resuming normal monitoring")
	case remediation.CooldownActive:
	default:
		logger.Error("Restart did not succeed, will retry on next check", zap.String("outcome", res.Outcome.String()))
		if obsws.IsTransportError(res.Err) {
			return res.Err
		}
	}
	return nil
}

func (s *Supervisor) recordRestart(res remediation.Result) {
	s.metrics.RecordRestart(res.Outcome.String())
	s.update(func(st *Status) {
		st.LastOutcome = res.Outcome.String()
		st.LastRestart = s.restarter.Gate().LastRestart()
	})
}

func (s *Supervisor) shutdown() {
	s.setState(StateShuttingDown)
	s.logger.Info("Stopping capture watchdog")
}

func sessionErr(sess Session) error {
	if err := sess.Err(); err != nil {
		return fmt.Errorf("%w: %w", errSessionLost, err)
	}
	return errSessionLost
}

// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output always goes to stdout; an optional log file receives the same
// stream so the watchdog can run detached and still leave a trail.
//
// Steady-state warnings that would repeat every tick (an unavailable
// snapshot, a failed reconnect) are passed through a Throttle gate.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", File: "/var/log/watchdog.log"})
//	logger.Info("Watchdog starting", zap.String("source", "Display"))
//
//	warnOnce := logging.Throttle(time.Minute)
//	warnOnce.Do(func() { logger.Warn("Snapshot unavailable", zap.Error(err)) })
package logging

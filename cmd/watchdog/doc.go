// Package main is the entry point for the capture watchdog.
//
// The watchdog keeps a connection to an OBS websocket control server,
// samples one capture source on a fixed interval and restarts it by
// toggling a setting when it stops producing new frames.
//
// Configuration:
//   - Defaults for a local OBS on port 4455
//   - Optional YAML or TOML file (-config)
//   - Environment variables (12-factor)
//   - CLI flags (override everything else)
//
// Usage:
//
//	# Watch the default source
//	./watchdog -source "Safari"
//
//	# Scene visibility checks with a status endpoint
//	./watchdog -strategy scene -status-addr 127.0.0.1:9108
//
//	# Restart once and exit (0 when the source was restarted)
//	./watchdog -restart-once
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

// Package config provides 12-factor configuration management for the watchdog.
//
// Configuration is layered: built-in defaults, then an optional YAML or TOML
// file, then environment variables. CLI flags in cmd/watchdog override all of
// them for one-off runs.
//
// Configuration Sections:
//   - Source: the capture source to watch
//   - OBS: control server address, password and timeouts
//   - Monitor: sampling interval, freeze threshold and check strategy
//   - Remediation: restart cooldown, settle delay and toggled setting
//   - Reconnect: backoff ceiling after a lost session
//   - Logging: log level, output format and optional log file
//   - Status: optional local status endpoint
//
// Example Usage:
//
//	cfg, err := config.Load("/etc/watchdog.yaml")
//	if err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
//
// Environment Variables:
//   - WATCHDOG_SOURCE, OBS_HOST, OBS_PORT, OBS_PASSWORD
//   - OBS_HANDSHAKE_TIMEOUT, OBS_REQUEST_TIMEOUT
//   - CHECK_INTERVAL, FREEZE_THRESHOLD, CHECK_STRATEGY, SCENE_FALLBACK
//   - SCREENSHOT_WIDTH, SCREENSHOT_HEIGHT
//   - RESTART_COOLDOWN, SETTLE_DELAY, TOGGLE_FIELD, RECONNECT_MAX_DELAY
//   - LOG_LEVEL, LOG_DEV, LOG_FILE, STATUS_ADDR
package config

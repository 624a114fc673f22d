// Package freeze decides when a capture source has stopped producing new
// output. Advance is the pure transition; Detector wraps it with a mutex so
// the status endpoint can read the streak while the supervisor writes it.
package freeze

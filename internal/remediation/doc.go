/*
Package remediation restarts a frozen capture source without recreating it.

The restart reads the source settings, applies them again with the capture
mode field flipped, waits a short settle delay and applies the original value.
The capture tears down and re-acquires while the source object, and every
scene reference to it, stays in place.

A Gate enforces a cooldown between successful restarts. While the gate is
closed AttemptRestart returns CooldownActive and sends nothing.
*/
package remediation

/*
Package supervisor ties the watchdog together.

A Supervisor moves through Disconnected, Connecting, Validating, Monitoring
and ShuttingDown. While monitoring it runs one tick per interval: sample the
source, advance the freeze detector and, on a frozen verdict, attempt a
restart. Ticks never overlap.

The first connection and the first source validation are fatal when they fail.
After that, losing the session sends the supervisor back to Connecting; the
reconnect waits on an exponential backoff and goes through a circuit breaker.
*/
package supervisor

/*
Package resilience provides the circuit breaker and backoff used when the
watchdog reconnects to the control server.

# Overview

After the first successful connection the watchdog never gives up on the
server. Each reconnect attempt runs through a Breaker; consecutive failures
open it, and while it is open attempts are skipped until its timeout passes.
Between attempts the supervisor waits on an exponential Backoff capped at the
configured maximum delay.

# Usage

	breaker := resilience.New("obs", resilience.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	backoff := resilience.NewBackoff(interval, 60*time.Second)

	for {
		session, err := resilience.Call(breaker, func() (*obsws.Session, error) {
			return obsws.Connect(ctx, opts)
		})
		if err == nil {
			backoff.Reset()
			break
		}
		if !resilience.Sleep(ctx, backoff.Next()) {
			return ctx.Err()
		}
	}

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience

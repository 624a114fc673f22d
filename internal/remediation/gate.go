package remediation

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Gate enforces the minimum interval between successful restarts.
type Gate struct {
	mu          sync.Mutex
	lastRestart time.Time
	cooldown    time.Duration
	clock       Clock
}

// NewGate creates a gate. A nil clock uses wall time.
func NewGate(cooldown time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = systemClock{}
	}
	return &Gate{cooldown: cooldown, clock: clock}
}

// Now returns the gate's notion of the current time.
func (g *Gate) Now() time.Time { return g.clock.Now() }

// Remaining returns how long the gate stays closed, zero when open.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastRestart.IsZero() {
		return 0
	}
	elapsed := g.clock.Now().Sub(g.lastRestart)
	if elapsed >= g.cooldown {
		return 0
	}
	return g.cooldown - elapsed
}

// Open reports whether a restart may be attempted now.
func (g *Gate) Open() bool { return g.Remaining() == 0 }

// Record marks a successful restart at t.
func (g *Gate) Record(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRestart = t
}

// LastRestart returns the time of the last successful restart, zero if none.
func (g *Gate) LastRestart() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRestart
}

// Cooldown returns the configured cooldown.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

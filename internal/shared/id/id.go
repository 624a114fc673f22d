// Package id provides identifier generation for the watchdog.
//
// Two kinds of identifiers are used:
//   - Session IDs: prefixed ULIDs, one per control-protocol connection, so log
//     lines from consecutive reconnects can be told apart.
//   - Request IDs: a per-session monotonic sequence ("req_1", "req_2", ...).
//     The control protocol correlates responses by exact string equality, and
//     a sequence guarantees an id is never reused within a session.
//   - Trace and span IDs: prefixed ULIDs for check cycles and status requests.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one control-protocol connection
type SessionID string

// RequestID correlates a request with its response
type RequestID string

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
	TracePrefix   = "trace"
	SpanPrefix    = "span"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewTraceID generates a trace ID for one check cycle or HTTP request
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// NewSpanID generates a span ID
func NewSpanID() string {
	return Default().GenerateWithPrefix(SpanPrefix)
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// ============================================================================
// Request Sequence
// ============================================================================

// Sequence allocates strictly increasing request IDs. The zero value is ready
// to use and starts at req_1.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next request ID
func (s *Sequence) Next() RequestID {
	return RequestID(RequestPrefix + "_" + strconv.FormatUint(s.n.Add(1), 10))
}

// Issued returns how many IDs have been handed out
func (s *Sequence) Issued() uint64 {
	return s.n.Load()
}

// ParseSequence extracts the counter from a request ID produced by Sequence.
func ParseSequence(id RequestID) (uint64, bool) {
	rest, ok := strings.CutPrefix(string(id), RequestPrefix+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestNewSessionID(t *testing.T) {
	sid := NewSessionID().String()

	if !strings.HasPrefix(sid, SessionPrefix+"_") {
		t.Fatalf("session ID should start with '%s_', got: %s", SessionPrefix, sid)
	}

	parts := strings.SplitN(sid, "_", 2)
	if !IsValid(parts[1]) {
		t.Errorf("ULID part should be valid: %s", parts[1])
	}
}

func TestSequenceIncreases(t *testing.T) {
	var seq Sequence

	tests := []struct {
		want string
	}{
		{"req_1"},
		{"req_2"},
		{"req_3"},
	}

	for _, tt := range tests {
		if got := seq.Next().String(); got != tt.want {
			t.Errorf("Next() = %s, want %s", got, tt.want)
		}
	}

	if seq.Issued() != 3 {
		t.Errorf("Issued() = %d, want 3", seq.Issued())
	}
}

func TestSequenceConcurrentNeverReuses(t *testing.T) {
	var seq Sequence
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[RequestID]bool, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rid := seq.Next()
				mu.Lock()
				if seen[rid] {
					t.Errorf("duplicate request ID: %s", rid)
				}
				seen[rid] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in     RequestID
		want   uint64
		wantOK bool
	}{
		{"req_42", 42, true},
		{"req_", 0, false},
		{"sess_42", 0, false},
		{"req_abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseSequence(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseSequence(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTraceAndSpanIDs(t *testing.T) {
	trace := NewTraceID()
	span := NewSpanID()

	if !strings.HasPrefix(trace, TracePrefix+"_") || !IsValid(strings.TrimPrefix(trace, TracePrefix+"_")) {
		t.Errorf("unexpected trace id %q", trace)
	}
	if !strings.HasPrefix(span, SpanPrefix+"_") || !IsValid(strings.TrimPrefix(span, SpanPrefix+"_")) {
		t.Errorf("unexpected span id %q", span)
	}
}

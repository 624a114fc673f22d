package health

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
)

// FingerprintSize is the digest length in bytes (128 bits).
const FingerprintSize = 16

// ErrUnavailable means the source could not produce a sample. It is not a
// freeze signal.
var ErrUnavailable = errors.New("sample unavailable")

// Fingerprint is a fixed-size content digest. Compare with ==.
type Fingerprint [FingerprintSize]byte

// Sum digests data with BLAKE2b-128.
func Sum(data []byte) Fingerprint {
	h, err := blake2b.New(FingerprintSize, nil)
	if err != nil {
		// only reachable with an invalid size or key
		panic(err)
	}
	h.Write(data)

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// String returns the short hex form used in logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:6])
}

// Kind classifies an observation
type Kind int

const (
	// KindContent carries a fingerprint of the rendered output.
	KindContent Kind = iota
	// KindActive means the source is visibly producing output.
	KindActive
	// KindInactive means the source is not producing output.
	KindInactive
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindActive:
		return "active"
	case KindInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Observation is the result of one successful health sample.
type Observation struct {
	Kind        Kind
	Fingerprint Fingerprint
}

// Content wraps a fingerprint.
func Content(fp Fingerprint) Observation {
	return Observation{Kind: KindContent, Fingerprint: fp}
}

// Active reports a visibly active source.
func Active() Observation { return Observation{Kind: KindActive} }

// Inactive reports a source that is not producing output.
func Inactive() Observation { return Observation{Kind: KindInactive} }

// Client is the subset of the control session the checkers use.
type Client interface {
	GetSourceScreenshot(ctx context.Context, req obsws.ScreenshotRequest) (string, error)
	GetCurrentProgramScene(ctx context.Context) (string, error)
	GetSceneItemList(ctx context.Context, scene string) ([]obsws.SceneItem, error)
	GetInputSettings(ctx context.Context, input string) (map[string]any, error)
}

// Checker samples the health of a named source.
type Checker interface {
	Check(ctx context.Context, c Client, source string) (Observation, error)
	Name() string
}

// SampleError reports an unavailable sample. It matches ErrUnavailable and
// unwraps to the cause so transport failures stay detectable.
type SampleError struct {
	Source string
	Err    error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %q: %s: %v", e.Source, ErrUnavailable, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Is matches ErrUnavailable.
func (e *SampleError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(source string, err error) error {
	return &SampleError{Source: source, Err: err}
}

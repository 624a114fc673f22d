package health

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
)

const (
	// MaxWidth and MaxHeight bound the requested snapshot.
	MaxWidth  = 320
	MaxHeight = 180

	defaultFormat = "png"
)

var errEmptyImage = errors.New("empty image data")

// ScreenshotChecker fingerprints a reduced-resolution snapshot of the source.
type ScreenshotChecker struct {
	Width  int
	Height int
	Format string
}

// NewScreenshotChecker clamps the dimensions to MaxWidth x MaxHeight.
func NewScreenshotChecker(width, height int) *ScreenshotChecker {
	if width <= 0 || width > MaxWidth {
		width = MaxWidth
	}
	if height <= 0 || height > MaxHeight {
		height = MaxHeight
	}
	return &ScreenshotChecker{Width: width, Height: height, Format: defaultFormat}
}

// Name implements Checker.
func (s *ScreenshotChecker) Name() string { return "screenshot" }

// Check implements Checker.
func (s *ScreenshotChecker) Check(ctx context.Context, c Client, source string) (Observation, error) {
	uri, err := c.GetSourceScreenshot(ctx, obsws.ScreenshotRequest{
		SourceName:  source,
		ImageFormat: s.Format,
		ImageWidth:  s.Width,
		ImageHeight: s.Height,
	})
	if err != nil {
		return Observation{}, unavailable(source, err)
	}

	raw, err := DecodeImage(uri)
	if err != nil {
		return Observation{}, unavailable(source, err)
	}
	return Content(Sum(raw)), nil
}

// DecodeImage extracts the encoded image bytes from a data URI (or bare
// base64) and checks that they are an image.
func DecodeImage(uri string) ([]byte, error) {
	payload := uri
	if strings.HasPrefix(payload, "data:") {
		i := strings.IndexByte(payload, ',')
		if i < 0 {
			return nil, fmt.Errorf("data uri without payload")
		}
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, errEmptyImage
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(raw) == 0 {
		return nil, errEmptyImage
	}

	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("unexpected content type %s", mt.String())
	}
	return raw, nil
}

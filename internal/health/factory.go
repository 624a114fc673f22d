package health

import (
	"fmt"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
)

// Options selects and configures a checker.
type Options struct {
	Strategy string
	Fallback string
	Width    int
	Height   int
	Logger   *logging.Logger
}

// New returns the checker for the configured strategy.
func New(opts Options) (Checker, error) {
	switch opts.Strategy {
	case "", "screenshot":
		return NewScreenshotChecker(opts.Width, opts.Height), nil
	case "scene":
		policy, err := ParseFallback(opts.Fallback)
		if err != nil {
			return nil, err
		}
		return NewSceneChecker(policy, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown check strategy %q", opts.Strategy)
	}
}

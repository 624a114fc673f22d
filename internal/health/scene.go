package health

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/infrastructure/logging"
	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
)

// FallbackPolicy decides the verdict for a source that exists but is not
// part of the current program scene.
type FallbackPolicy int

const (
	// AssumeHealthy reports Active when the source still answers a settings
	// probe. It cannot see a frozen source that is off-scene.
	AssumeHealthy FallbackPolicy = iota
	// Strict reports Inactive.
	Strict
)

// ParseFallback maps a config value to a policy.
func ParseFallback(s string) (FallbackPolicy, error) {
	switch s {
	case "", "assume-healthy":
		return AssumeHealthy, nil
	case "strict":
		return Strict, nil
	default:
		return AssumeHealthy, fmt.Errorf("unknown scene fallback %q", s)
	}
}

func (p FallbackPolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "assume-healthy"
}

// SceneChecker reports whether the source is an enabled item of the current
// program scene. It never yields fingerprints, so the freeze detector counts
// consecutive Inactive observations.
type SceneChecker struct {
	Fallback FallbackPolicy
	logger   *logging.Logger
}

// NewSceneChecker creates a scene visibility checker.
func NewSceneChecker(fallback FallbackPolicy, logger *logging.Logger) *SceneChecker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SceneChecker{Fallback: fallback, logger: logger}
}

// Name implements Checker.
func (s *SceneChecker) Name() string { return "scene" }

// Check implements Checker. Transport failures are reported as unavailable so
// the caller reconnects; any other lookup failure is an observation.
func (s *SceneChecker) Check(ctx context.Context, c Client, source string) (Observation, error) {
	scene, err := c.GetCurrentProgramScene(ctx)
	if err != nil {
		if obsws.IsTransportError(err) {
			return Observation{}, unavailable(source, err)
		}
		s.logger.Warn("Could not get current program scene", zap.Error(err))
		return Inactive(), nil
	}
	if scene == "" {
		s.logger.Warn("Current scene name is empty")
		return Inactive(), nil
	}

	items, err := c.GetSceneItemList(ctx, scene)
	if err != nil {
		if obsws.IsTransportError(err) {
			return Observation{}, unavailable(source, err)
		}
		s.logger.Debug("Could not get scene items, assuming source is ok", zap.String("scene", scene), zap.Error(err))
		return Active(), nil
	}

	for _, item := range items {
		if item.SourceName != source {
			continue
		}
		s.logger.Debug("Found source in scene",
			zap.String("scene", scene),
			zap.Bool("enabled", item.SceneItemEnabled),
		)
		if item.SceneItemEnabled {
			return Active(), nil
		}
		return Inactive(), nil
	}

	return s.fallback(ctx, c, source, scene)
}

func (s *SceneChecker) fallback(ctx context.Context, c Client, source, scene string) (Observation, error) {
	if s.Fallback == Strict {
		s.logger.Debug("Source not in current scene", zap.String("scene", scene))
		return Inactive(), nil
	}

	if _, err := c.GetInputSettings(ctx, source); err != nil {
		if obsws.IsTransportError(err) {
			return Observation{}, unavailable(source, err)
		}
		s.logger.Warn("Source not in current scene and not found as input",
			zap.String("scene", scene), zap.Error(err))
		return Inactive(), nil
	}
	s.logger.Debug("Source exists as input, assuming ok", zap.String("scene", scene))
	return Active(), nil
}

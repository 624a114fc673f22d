package supervisor

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/capture-watchdog/internal/obsws"
)

// Server events the supervisor reacts to.
const (
	EventExitStarted                 = "ExitStarted"
	EventInputRemoved                = "InputRemoved"
	EventInputNameChanged            = "InputNameChanged"
	EventSceneItemEnableStateChanged = "SceneItemEnableStateChanged"
)

func (s *Supervisor) handleEvent(ev obsws.Event) error {
	switch ev.EventType {
	case EventExitStarted:
		s.logger.Warn("Control server is exiting")
		return errServerExiting

	case EventInputRemoved:
		var data struct {
			InputName string `json:"inputName"`
		}
		if err := ev.Decode(&data); err == nil && data.InputName == s.opts.Source {
			s.logger.Error("Watched source was removed")
		}

	case EventInputNameChanged:
		var data struct {
			OldInputName string `json:"oldInputName"`
			InputName    string `json:"inputName"`
		}
		if err := ev.Decode(&data); err == nil && data.OldInputName == s.opts.Source {
			s.logger.Error("Watched source was renamed", zap.String("new_name", data.InputName))
		}

	case EventSceneItemEnableStateChanged:
		s.logger.Debug("Scene item visibility changed")

	default:
		s.logger.Debug("Ignoring event", zap.String("event_type", ev.EventType))
	}
	return nil
}

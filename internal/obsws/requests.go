package obsws

import (
	"context"
)

// Request types used by the watchdog.
const (
	ReqGetVersion             = "GetVersion"
	ReqGetInputList           = "GetInputList"
	ReqGetCurrentProgramScene = "GetCurrentProgramScene"
	ReqGetSceneItemList       = "GetSceneItemList"
	ReqGetInputSettings       = "GetInputSettings"
	ReqSetInputSettings       = "SetInputSettings"
	ReqGetSourceScreenshot    = "GetSourceScreenshot"
)

// Version describes the server.
type Version struct {
	ObsVersion          string   `json:"obsVersion"`
	ObsWebSocketVersion string   `json:"obsWebSocketVersion"`
	RPCVersion          int      `json:"rpcVersion"`
	Platform            string   `json:"platform"`
	AvailableRequests   []string `json:"availableRequests,omitempty"`
}

// Input is one entry of GetInputList.
type Input struct {
	InputName            string `json:"inputName"`
	InputKind            string `json:"inputKind"`
	UnversionedInputKind string `json:"unversionedInputKind"`
}

// SceneItem is one entry of GetSceneItemList.
type SceneItem struct {
	SceneItemID      int    `json:"sceneItemId"`
	SourceName       string `json:"sourceName"`
	SceneItemEnabled bool   `json:"sceneItemEnabled"`
}

// InputSettings is the response of GetInputSettings.
type InputSettings struct {
	InputKind     string         `json:"inputKind"`
	InputSettings map[string]any `json:"inputSettings"`
}

// ScreenshotRequest parameters for GetSourceScreenshot.
type ScreenshotRequest struct {
	SourceName  string `json:"sourceName"`
	ImageFormat string `json:"imageFormat"`
	ImageWidth  int    `json:"imageWidth,omitempty"`
	ImageHeight int    `json:"imageHeight,omitempty"`
}

// Call issues a request and decodes its data into out when out is non-nil.
func (s *Session) Call(ctx context.Context, requestType string, data, out any) error {
	resp, err := s.Request(ctx, requestType, data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// GetVersion probes the server and reports its version.
func (s *Session) GetVersion(ctx context.Context) (*Version, error) {
	var v Version
	if err := s.Call(ctx, ReqGetVersion, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetInputList returns every input the server knows about.
func (s *Session) GetInputList(ctx context.Context) ([]Input, error) {
	var out struct {
		Inputs []Input `json:"inputs"`
	}
	if err := s.Call(ctx, ReqGetInputList, nil, &out); err != nil {
		return nil, err
	}
	return out.Inputs, nil
}

// GetCurrentProgramScene returns the name of the scene on program output.
func (s *Session) GetCurrentProgramScene(ctx context.Context) (string, error) {
	var out struct {
		SceneName               string `json:"sceneName"`
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := s.Call(ctx, ReqGetCurrentProgramScene, nil, &out); err != nil {
		return "", err
	}
	if out.CurrentProgramSceneName != "" {
		return out.CurrentProgramSceneName, nil
	}
	return out.SceneName, nil
}

// GetSceneItemList returns the items of a scene.
func (s *Session) GetSceneItemList(ctx context.Context, scene string) ([]SceneItem, error) {
	var out struct {
		SceneItems []SceneItem `json:"sceneItems"`
	}
	req := map[string]any{"sceneName": scene}
	if err := s.Call(ctx, ReqGetSceneItemList, req, &out); err != nil {
		return nil, err
	}
	return out.SceneItems, nil
}

// GetInputSettings returns the current settings of an input.
func (s *Session) GetInputSettings(ctx context.Context, input string) (map[string]any, error) {
	var out InputSettings
	req := map[string]any{"inputName": input}
	if err := s.Call(ctx, ReqGetInputSettings, req, &out); err != nil {
		return nil, err
	}
	if out.InputSettings == nil {
		out.InputSettings = map[string]any{}
	}
	return out.InputSettings, nil
}

// SetInputSettings applies settings to an input, overlaying the existing ones.
func (s *Session) SetInputSettings(ctx context.Context, input string, settings map[string]any) error {
	req := map[string]any{
		"inputName":     input,
		"inputSettings": settings,
		"overlay":       true,
	}
	return s.Call(ctx, ReqSetInputSettings, req, nil)
}

// GetSourceScreenshot returns the screenshot as a data URI.
func (s *Session) GetSourceScreenshot(ctx context.Context, req ScreenshotRequest) (string, error) {
	var out struct {
		ImageData string `json:"imageData"`
	}
	if err := s.Call(ctx, ReqGetSourceScreenshot, req, &out); err != nil {
		return "", err
	}
	return out.ImageData, nil
}

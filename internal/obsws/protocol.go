package obsws

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// codec matches encoding/json behaviour so payloads round-trip the same way
// the server encodes them.
var codec = sonic.ConfigStd

// OpCode identifies the kind of a protocol frame
type OpCode int

const (
	OpHello           OpCode = 0
	OpIdentify        OpCode = 1
	OpIdentified      OpCode = 2
	OpEvent           OpCode = 5
	OpRequest         OpCode = 6
	OpRequestResponse OpCode = 7
)

// RPCVersion is the protocol revision declared in Identify.
const RPCVersion = 1

// EventSubscription is a bitmask of event categories requested in Identify.
type EventSubscription uint32

const (
	EventGeneral     EventSubscription = 1 << 0
	EventConfig      EventSubscription = 1 << 1
	EventScenes      EventSubscription = 1 << 2
	EventInputs      EventSubscription = 1 << 3
	EventTransitions EventSubscription = 1 << 4
	EventFilters     EventSubscription = 1 << 5
	EventOutputs     EventSubscription = 1 << 6
	EventSceneItems  EventSubscription = 1 << 7

	// DefaultEvents covers what the watchdog reacts to: server exit, input
	// rename/removal and scene item visibility.
	DefaultEvents = EventGeneral | EventInputs | EventSceneItems
)

// Close codes the server uses when it drops a client during the handshake.
const (
	CloseAuthenticationFailed  = 4009
	CloseUnsupportedRPCVersion = 4010
)

// envelope is the outer shape of every frame
type envelope struct {
	Op OpCode          `json:"op"`
	D  json.RawMessage `json:"d"`
}

// Hello is the greeting sent by the server on connect.
type Hello struct {
	ObsWebSocketVersion string          `json:"obsWebSocketVersion"`
	RPCVersion          int             `json:"rpcVersion"`
	Authentication      *Authentication `json:"authentication,omitempty"`
}

// Authentication carries the challenge when the server requires a password.
type Authentication struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

// Identify is the client's reply to Hello.
type Identify struct {
	RPCVersion         int               `json:"rpcVersion"`
	Authentication     string            `json:"authentication,omitempty"`
	EventSubscriptions EventSubscription `json:"eventSubscriptions"`
}

// Identified acknowledges a successful Identify.
type Identified struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

// Request is an outgoing call.
type Request struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

// RequestStatus reports whether the server carried out a request.
type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// RequestResponse is the server's answer to a Request.
type RequestResponse struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	Status      RequestStatus   `json:"requestStatus"`
	Data        json.RawMessage `json:"responseData,omitempty"`

	// set by the receive loop when the frame matched a request but its
	// body could not be decoded
	decodeErr error
}

// Decode unmarshals the response data into v.
func (r *RequestResponse) Decode(v any) error {
	if len(r.Data) == 0 {
		return &RequestError{Kind: Malformed, RequestType: r.RequestType, Err: errEmptyResponseData}
	}
	if err := codec.Unmarshal(r.Data, v); err != nil {
		return &RequestError{Kind: Malformed, RequestType: r.RequestType, Err: err}
	}
	return nil
}

// Event is an asynchronous notification from the server.
type Event struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	Data        json.RawMessage `json:"eventData,omitempty"`
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return errEmptyResponseData
	}
	return codec.Unmarshal(e.Data, v)
}

func encodeFrame(op OpCode, d any) ([]byte, error) {
	body, err := codec.Marshal(d)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(envelope{Op: op, D: body})
}

func decodeFrame(data []byte) (envelope, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return env, err
	}
	return env, nil
}

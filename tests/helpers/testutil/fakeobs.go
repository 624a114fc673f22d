package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FakeResponse is what a FakeOBS handler answers with.
type FakeResponse struct {
	Result  bool
	Code    int
	Comment string
	Data    any
	// Drop suppresses the response entirely.
	Drop bool
	// Delay holds the response back.
	Delay time.Duration
}

// OK is a successful response carrying data.
func OK(data any) FakeResponse {
	return FakeResponse{Result: true, Code: 100, Data: data}
}

// Fail is a refused response.
func Fail(code int, comment string) FakeResponse {
	return FakeResponse{Result: false, Code: code, Comment: comment}
}

// FakeHandler answers one request type.
type FakeHandler func(data json.RawMessage) FakeResponse

// ReceivedRequest records a request seen by the fake.
type ReceivedRequest struct {
	Type string
	ID   string
	Data json.RawMessage
}

// FakeOBS is an in-process control server speaking the websocket protocol.
// It is plain encoding/json on purpose so the client codec is checked against
// the reference encoder.
type FakeOBS struct {
	t      *testing.T
	server *httptest.Server

	// Password enables the authentication challenge when non-empty.
	Password  string
	Salt      string
	Challenge string

	// IdentifiedFrame replaces the Identified reply when set.
	IdentifiedFrame []byte

	mu         sync.Mutex
	handlers   map[string]FakeHandler
	requests   []ReceivedRequest
	identifies []map[string]any
	conns      map[*websocket.Conn]*sync.Mutex
	accepted   int
}

// NewFakeOBS starts a fake server; it is closed when the test ends.
func NewFakeOBS(t *testing.T) *FakeOBS {
	t.Helper()

	f := &FakeOBS{
		t:         t,
		Salt:      "lM1GncleQOaCu9lT1yeUZhFYnqhsLLP1G5lAGo3ixaI=",
		Challenge: "+IxH4CnCiqpX1rM9scsNynZzbOe4KhDeYcTNS3PDaeY=",
		handlers:  make(map[string]FakeHandler),
		conns:     make(map[*websocket.Conn]*sync.Mutex),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Host returns the listening host.
func (f *FakeOBS) Host() string {
	host, _, _ := net.SplitHostPort(f.server.Listener.Addr().String())
	return host
}

// Port returns the listening port.
func (f *FakeOBS) Port() int {
	_, port, _ := net.SplitHostPort(f.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Handle registers the handler for a request type.
func (f *FakeOBS) Handle(requestType string, h FakeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[requestType] = h
}

// HandleStatic answers a request type with the same response every time.
func (f *FakeOBS) HandleStatic(requestType string, resp FakeResponse) {
	f.Handle(requestType, func(json.RawMessage) FakeResponse { return resp })
}

// Requests returns a copy of every request received so far.
func (f *FakeOBS) Requests() []ReceivedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReceivedRequest(nil), f.requests...)
}

// RequestsOf returns the received requests of one type.
func (f *FakeOBS) RequestsOf(requestType string) []ReceivedRequest {
	var out []ReceivedRequest
	for _, r := range f.Requests() {
		if r.Type == requestType {
			out = append(out, r)
		}
	}
	return out
}

// Identifies returns the Identify payloads received.
func (f *FakeOBS) Identifies() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.identifies...)
}

// Accepted returns how many connections completed the handshake.
func (f *FakeOBS) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

// Broadcast writes a raw frame to every connected client.
func (f *FakeOBS) Broadcast(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		f.t.Errorf("fake obs: marshal broadcast: %v", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, wmu := range f.conns {
		wmu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
	}
}

// DropConnections closes every client connection without a close frame.
func (f *FakeOBS) DropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		_ = conn.Close()
	}
}

// Close stops the server.
func (f *FakeOBS) Close() {
	f.DropConnections()
	f.server.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (f *FakeOBS) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	write := func(v any) {
		data, _ := json.Marshal(v)
		wmu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
	}

	hello := map[string]any{"obsWebSocketVersion": "5.5.0", "rpcVersion": 1}
	if f.Password != "" {
		hello["authentication"] = map[string]any{"challenge": f.Challenge, "salt": f.Salt}
	}
	write(map[string]any{"op": 0, "d": hello})

	var identify struct {
		Op int            `json:"op"`
		D  map[string]any `json:"d"`
	}
	if err := conn.ReadJSON(&identify); err != nil || identify.Op != 1 {
		return
	}
	f.mu.Lock()
	f.identifies = append(f.identifies, identify.D)
	f.mu.Unlock()

	if f.Password != "" {
		got, _ := identify.D["authentication"].(string)
		if got != expectedAuth(f.Password, f.Salt, f.Challenge) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(4009, "Authentication failed."),
				time.Now().Add(time.Second))
			return
		}
	}

	if f.IdentifiedFrame != nil {
		wmu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, f.IdentifiedFrame)
		wmu.Unlock()
		return
	}
	write(map[string]any{"op": 2, "d": map[string]any{"negotiatedRpcVersion": 1}})

	f.mu.Lock()
	f.conns[conn] = wmu
	f.accepted++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
	}()

	for {
		var frame struct {
			Op int `json:"op"`
			D  struct {
				RequestType string          `json:"requestType"`
				RequestID   string          `json:"requestId"`
				RequestData json.RawMessage `json:"requestData"`
			} `json:"d"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Op != 6 {
			continue
		}

		req := ReceivedRequest{Type: frame.D.RequestType, ID: frame.D.RequestID, Data: frame.D.RequestData}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		h, ok := f.handlers[req.Type]
		f.mu.Unlock()

		resp := Fail(204, "unknown request type")
		if ok {
			resp = h(req.Data)
		}
		if resp.Drop {
			continue
		}

		go func(req ReceivedRequest, resp FakeResponse) {
			if resp.Delay > 0 {
				time.Sleep(resp.Delay)
			}
			d := map[string]any{
				"requestType": req.Type,
				"requestId":   req.ID,
				"requestStatus": map[string]any{
					"result":  resp.Result,
					"code":    resp.Code,
					"comment": resp.Comment,
				},
			}
			if resp.Data != nil {
				d["responseData"] = resp.Data
			}
			write(map[string]any{"op": 7, "d": d})
		}(req, resp)
	}
}

func expectedAuth(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	auth := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(secret[:]) + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

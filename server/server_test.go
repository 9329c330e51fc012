package server_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxwire/voxwire-go/events"
	"github.com/voxwire/voxwire-go/internal/config"
	"github.com/voxwire/voxwire-go/relay"
	"github.com/voxwire/voxwire-go/server"
	"github.com/voxwire/voxwire-go/tool"
)

// fakeModel is an in-process stand-in for the realtime endpoint. It completes
// the session handshake and records every audio append it receives.
type fakeModel struct {
	upgrader websocket.Upgrader
	conns    chan *fakeModelConn
	appends  chan []byte
}

type fakeModelConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *fakeModelConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, data))
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		conns:   make(chan *fakeModelConn, 4),
		appends: make(chan []byte, 64),
	}
}

func (f *fakeModel) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fc := &fakeModelConn{conn: conn}
	f.conns <- fc

	writeText := func(s string) {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(s))
	}
	writeText(`{"type":"session.created","event_id":"m1","session":{"id":"sess_1"}}`)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case events.TypeSessionUpdate:
			writeText(`{"type":"session.updated","event_id":"m2"}`)
		case events.TypeInputAudioBufferAppend:
			var evt events.InputAudioBufferAppendEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(evt.Audio)
			if err != nil {
				continue
			}
			select {
			case f.appends <- pcm:
			default:
			}
		}
	}
}

type stack struct {
	ts    *httptest.Server
	model *fakeModel
	relay *relay.Relay
}

func newStack(t *testing.T, mutate func(*config.Config)) *stack {
	t.Helper()

	fm := newFakeModel()
	modelSrv := httptest.NewServer(http.HandlerFunc(fm.handler))
	t.Cleanup(modelSrv.Close)

	rly := relay.New(
		relay.WithKey("test-key"),
		relay.WithModelURL("ws"+strings.TrimPrefix(modelSrv.URL, "http")),
		relay.WithHandshakeTimeout(5*time.Second),
	)
	t.Cleanup(rly.Shutdown)

	cfg := config.Config{
		Port:      0,
		PublicURL: "https://relay.example.com",
		OpenAIKey: "test-key",
		ChatModel: "gpt-4o-mini",
		Voice:     "coral",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg, rly, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{ts: ts, model: fm, relay: rly}
}

func (s *stack) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + path
}

func (s *stack) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *stack) modelConn(t *testing.T) *fakeModelConn {
	t.Helper()
	select {
	case fc := <-s.model.conns:
		return fc
	case <-time.After(5 * time.Second):
		t.Fatal("relay never dialed the model")
		return nil
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	s := newStack(t, nil)

	var body map[string]any
	resp := getJSON(t, s.ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "https://relay.example.com", body["publicUrl"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestPublicURL(t *testing.T) {
	s := newStack(t, nil)

	var body map[string]any
	resp := getJSON(t, s.ts.URL+"/public-url", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://relay.example.com", body["publicUrl"])
}

func TestToolsListsRegisteredSchemas(t *testing.T) {
	s := newStack(t, nil)
	s.relay.Registry().Register(
		tool.Func("get_time", "Get the current time", nil),
		func(ctx context.Context, args map[string]any) (any, error) { return "now", nil },
	)

	var tools []tool.Tool
	resp := getJSON(t, s.ts.URL+"/tools", &tools)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_time", tools[0].Name)
	assert.Equal(t, "function", tools[0].Type)
}

func TestTwiml(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Get(s.ts.URL + "/twiml")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/xml")

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, `url="wss://relay.example.com/call"`)
}

func TestTwimlWithoutPublicURL(t *testing.T) {
	s := newStack(t, func(c *config.Config) { c.PublicURL = "" })

	resp, err := http.Get(s.ts.URL + "/twiml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestDialWithoutTwilioCredentials(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Post(s.ts.URL+"/dial", "application/json", strings.NewReader(`{"to":"+15551234567","from":"+15557654321"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Twilio client not initialized")
}

func TestDialRejectsGet(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Get(s.ts.URL + "/dial")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestChatValidation(t *testing.T) {
	s := newStack(t, nil)

	resp, err := http.Get(s.ts.URL + "/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(s.ts.URL+"/chat", "application/json", strings.NewReader(`{"message":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	s := newStack(t, nil)

	req, err := http.NewRequest(http.MethodOptions, s.ts.URL+"/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func startFrame(sid string) map[string]any {
	return map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": sid},
	}
}

func mediaFrame(payload []byte) map[string]any {
	return map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(payload)},
	}
}

func TestCallSessionEndToEnd(t *testing.T) {
	s := newStack(t, nil)

	obs := s.dial(t, "/logs")
	// Give the relay a moment to install the observer before traffic starts.
	time.Sleep(100 * time.Millisecond)

	call := s.dial(t, "/call")
	fc := s.modelConn(t)

	require.NoError(t, call.WriteJSON(startFrame("SM123")))

	// Caller audio: one 20 ms μ-law packet in, model-native PCM out.
	ulaw := make([]byte, 160)
	for i := range ulaw {
		ulaw[i] = byte(i)
	}
	require.NoError(t, call.WriteJSON(mediaFrame(ulaw)))

	select {
	case pcm := <-s.model.appends:
		assert.Zero(t, len(pcm)%2)
		assert.InDelta(t, 960, len(pcm), 64)
	case <-time.After(5 * time.Second):
		t.Fatal("model never received caller audio")
	}

	// Model audio: one 20 ms PCM packet comes back as a μ-law media frame
	// tagged with the latched stream id.
	pcm := make([]byte, 960)
	for i := range pcm {
		pcm[i] = byte(i % 7)
	}
	fc.send(t, map[string]any{
		"type":     events.TypeResponseAudioDelta,
		"event_id": "m3",
		"delta":    base64.StdEncoding.EncodeToString(pcm),
	})

	require.NoError(t, call.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame struct {
			Event     string `json:"event"`
			StreamSid string `json:"streamSid"`
			Media     *struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		require.NoError(t, call.ReadJSON(&frame))
		if frame.Event != "media" {
			continue
		}
		assert.Equal(t, "SM123", frame.StreamSid)
		require.NotNil(t, frame.Media)
		out, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		require.NoError(t, err)
		assert.InDelta(t, 160, len(out), 16)
		break
	}

	// The observer saw the classified traffic.
	require.NoError(t, obs.SetReadDeadline(time.Now().Add(5*time.Second)))
	seen := map[string]bool{}
	for !seen[events.TypeSessionCreated] {
		_, data, err := obs.ReadMessage()
		require.NoError(t, err)
		var env events.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		seen[env.Type] = true
	}

	require.NoError(t, call.WriteJSON(map[string]any{"event": "stop"}))
}

func TestSecondCallDisplacesFirst(t *testing.T) {
	s := newStack(t, nil)

	first := s.dial(t, "/call")
	s.modelConn(t)

	second := s.dial(t, "/call")
	s.modelConn(t)
	require.NoError(t, second.WriteJSON(startFrame("SM2")))

	// The displaced connection is closed by the relay.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			return
		}
	}
}

func TestObserverUpdateBeforeCallIsCached(t *testing.T) {
	s := newStack(t, nil)

	obs := s.dial(t, "/logs")
	require.NoError(t, obs.WriteJSON(map[string]any{
		"type":     events.TypeSessionUpdate,
		"event_id": "o1",
		"session":  map[string]any{"voice": "ash"},
	}))

	require.Eventually(t, func() bool {
		pending, ok := s.relay.PendingConfig()
		return ok && pending.Voice == "ash"
	}, 5*time.Second, 20*time.Millisecond)
}

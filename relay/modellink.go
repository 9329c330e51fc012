package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/voxwire/voxwire-go/codec"
	"github.com/voxwire/voxwire-go/events"
	"github.com/voxwire/voxwire-go/internal/websocket"
)

// outBufferSeconds sizes the model→call audio buffer. When the call side
// drains too slowly the newest delta is dropped instead of blocking the
// model receive loop (bounded-queue-with-drop policy).
const outBufferSeconds = 60

// ModelLink owns the single outbound connection to the hosted model for one
// session. It classifies every inbound event, keeps the outbound audio
// buffer the call link drains, and answers every function call the model
// issues with exactly one result.
type ModelLink struct {
	cfg    *relayConfig
	logger *slog.Logger

	ws   *websocket.Client
	send func(data []byte) // seam: defaults to ws.WriteText once open

	update chan struct{}
	out    *ringbuffer.RingBuffer

	// tap receives every classified event plus unknown types verbatim.
	tap      func(eventType string, raw []byte)
	onSpeech func(started bool)
	onClose  func()

	mu         sync.Mutex
	session    events.SessionUpdate
	dispatched map[string]struct{}
}

func newModelLink(cfg *relayConfig, session events.SessionUpdate, logger *slog.Logger) *ModelLink {
	out := ringbuffer.New(codec.ModelRate * codec.BytesPerSample * outBufferSeconds).SetBlocking(true)
	return &ModelLink{
		cfg:        cfg,
		logger:     logger,
		update:     make(chan struct{}, 1),
		out:        out,
		session:    session,
		dispatched: make(map[string]struct{}),
	}
}

// Open dials the realtime endpoint and completes the configuration
// handshake: session.created → session.update → session.updated. A handshake
// that does not complete within the configured interval fails with
// ErrHandshakeTimeout and the caller tears the whole session down.
func (m *ModelLink) Open(ctx context.Context) error {
	if err := m.cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", m.cfg.apiKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	initialized := make(chan error, 1)
	ready := make(chan struct{})
	var hsOnce sync.Once

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		Logger:  m.logger,
		URL:     fmt.Sprintf("%s?model=%s", m.cfg.modelURL, m.cfg.model),
		Headers: headers,
		OnClose: func() {
			m.out.CloseWriter()
			if m.onClose != nil {
				m.onClose()
			}
		},
		OnText: func(data []byte) error {
			// The first event may beat Connect's return; wait until the
			// send path is wired before classifying anything.
			<-ready
			return m.handleEvent(data, func(err error) {
				hsOnce.Do(func() { initialized <- err })
			})
		},
	})
	if err != nil {
		return &LinkError{Link: "model", Err: err}
	}
	m.ws = ws
	if m.send == nil {
		m.send = ws.WriteText
	}
	close(ready)

	select {
	case err := <-initialized:
		if err != nil {
			return &LinkError{Link: "model", Err: err}
		}
		return nil
	case <-time.After(m.cfg.handshakeTimeout):
		m.Close()
		return ErrHandshakeTimeout
	case <-ctx.Done():
		m.Close()
		return ctx.Err()
	}
}

func (m *ModelLink) Close() {
	m.out.CloseWriter()
	if m.ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.ws.Close(ctx)
	}
}

// Done reports model socket teardown. Nil-safe before Open.
func (m *ModelLink) Done() <-chan struct{} {
	if m.ws == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.ws.Done()
}

// Send marshals and writes any event to the model socket.
func (m *ModelLink) Send(evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if m.send == nil {
		return &LinkError{Link: "model", Err: fmt.Errorf("not connected")}
	}
	m.send(data)
	return nil
}

// SessionUpdate re-sends the negotiated configuration. Idempotent; last
// write wins. Blocks until the model acknowledges or times out.
func (m *ModelLink) SessionUpdate(session events.SessionUpdate) error {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	if err := m.Send(events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeSessionUpdate),
		Session:   session,
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for session update")
	case <-m.update:
	}

	return nil
}

// Session returns the last configuration handed to the model.
func (m *ModelLink) Session() events.SessionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *ModelLink) CreateResponse() error {
	return m.Send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
		Response:  events.ResponseCreatePayload{},
	})
}

// AppendAudio forwards one model-native PCM frame into the model's input
// audio buffer.
func (m *ModelLink) AppendAudio(pcm []byte) error {
	return m.Send(events.InputAudioBufferAppendEvent{
		BaseEvent: events.NewBaseEvent(events.TypeInputAudioBufferAppend),
		Audio:     base64.StdEncoding.EncodeToString(pcm),
	})
}

// AudioOut is the buffered model audio awaiting the call link. Reads block
// until data arrives; io.EOF after Close.
func (m *ModelLink) AudioOut() io.Reader {
	return m.out
}

// ClearAudioOut drops all buffered model audio. Called on barge-in so the
// caller stops hearing a reply they already interrupted.
func (m *ModelLink) ClearAudioOut() {
	m.out.Reset()
}

func (m *ModelLink) emit(eventType string, raw []byte) {
	if m.tap != nil {
		m.tap(eventType, raw)
	}
}

// handleEvent classifies one inbound model event. Unrecognized types are
// forwarded verbatim and otherwise ignored.
func (m *ModelLink) handleEvent(data []byte, handshake func(error)) error {
	env, err := events.Parse[events.Envelope](data)
	if err != nil {
		return err
	}

	switch env.Type {
	case events.TypeError:
		evt, err := events.Parse[events.ErrorEvent](data)
		if err != nil {
			m.logger.Error("failed to parse error event", slog.Any("err", err))
		} else {
			m.logger.Error("model error", slog.String("code", evt.ErrorDetail.Code), slog.String("message", evt.ErrorDetail.Message))
		}
		m.emit(env.Type, data)

	case events.TypeSessionCreated:
		m.emit(env.Type, data)
		go func() {
			handshake(m.SessionUpdate(m.Session()))
		}()

	case events.TypeSessionUpdated:
		select {
		case m.update <- struct{}{}:
		default:
		}
		m.emit(env.Type, data)

	case events.TypeResponseAudioDelta:
		evt, err := events.Parse[events.ResponseAudioDeltaEvent](data)
		if err != nil {
			m.logger.Error("failed to parse audio delta", slog.Any("err", err))
			break
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			m.logger.Error("failed to decode audio delta", slog.Any("err", err))
			break
		}
		m.writeAudioOut(pcm)
		m.emit(env.Type, data)

	case events.TypeSpeechStarted:
		m.ClearAudioOut()
		if m.onSpeech != nil {
			m.onSpeech(true)
		}
		m.emit(env.Type, data)

	case events.TypeSpeechStopped:
		if m.onSpeech != nil {
			m.onSpeech(false)
		}
		m.emit(env.Type, data)

	case events.TypeResponseDone:
		evt, err := events.Parse[events.ResponseDoneEvent](data)
		if err != nil {
			m.logger.Error("failed to parse response done", slog.Any("err", err))
			break
		}
		for _, o := range evt.Response.Output {
			if o.Type == "function_call" && o.Status == "completed" {
				m.dispatchToolCall(o)
			}
		}
		m.emit(env.Type, data)

	case events.TypeConversationItemCreated:
		// A function call can surface here with its arguments already
		// attached; the dedup map keeps double delivery harmless when the
		// same call shows up again in response.done.
		evt, err := events.Parse[events.ConversationItemCreatedEvent](data)
		if err == nil && evt.Item.Type == "function_call" && evt.Item.Arguments != "" {
			m.dispatchToolCall(events.ResponseOutputItem{
				ID:        evt.Item.ID,
				Type:      evt.Item.Type,
				Status:    evt.Item.Status,
				Name:      evt.Item.Name,
				CallID:    evt.Item.CallID,
				Arguments: evt.Item.Arguments,
			})
		}
		m.emit(env.Type, data)

	case events.TypeResponseAudioDone,
		events.TypeResponseTranscriptDelta,
		events.TypeResponseTranscriptDone:
		m.emit(env.Type, data)

	default:
		// Forward compatibility over strict validation.
		m.emit(env.Type, data)
	}

	return nil
}

func (m *ModelLink) writeAudioOut(pcm []byte) {
	// Drop instead of blocking the receive loop when the buffer is full.
	if m.out.Free() < len(pcm) {
		m.logger.Debug("audio out buffer full, dropping delta", slog.Int("len", len(pcm)))
		return
	}
	if _, err := m.out.Write(pcm); err != nil {
		m.logger.Error("failed to buffer model audio", slog.Any("err", err))
	}
}

// dispatchToolCall hands one function call to the registry and always sends
// exactly one result back, success or failure, then asks the model to
// continue the response.
func (m *ModelLink) dispatchToolCall(item events.ResponseOutputItem) {
	m.mu.Lock()
	if _, seen := m.dispatched[item.CallID]; seen {
		m.mu.Unlock()
		return
	}
	m.dispatched[item.CallID] = struct{}{}
	m.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.toolTimeout)
		defer cancel()

		res, derr := m.cfg.registry.InvokeRaw(ctx, item.Name, item.Arguments)
		m.logger.Debug("tool call",
			slog.String("name", item.Name),
			slog.String("call_id", item.CallID),
			slog.Any("err", derr),
		)

		var output string
		switch {
		case derr != nil:
			d, _ := json.Marshal(map[string]any{"error": derr.Error()})
			output = string(d)
		case res != nil:
			d, _ := json.Marshal(res)
			output = string(d)
		default:
			d, _ := json.Marshal(map[string]any{"success": true})
			output = string(d)
		}

		_ = m.Send(events.ConversationItemCreateEvent{
			BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
			Item: events.ConversationItem{
				Type:   "function_call_output",
				CallID: item.CallID,
				Output: output,
			},
		})
		_ = m.CreateResponse()
	}()
}

// UserInput injects a text message into the conversation, optionally asking
// for an immediate response.
func (m *ModelLink) UserInput(text string, respond bool) error {
	err := m.Send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			Type: "message",
			Role: "user",
			Content: []events.ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	})
	if err != nil {
		return err
	}

	if respond {
		return m.CreateResponse()
	}
	return nil
}

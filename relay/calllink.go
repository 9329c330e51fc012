package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxwire/voxwire-go/codec"
)

// Transport selects which call-side variant is connected.
type Transport string

const (
	// TransportTwilio is a Twilio Media Stream: μ-law 8 kHz audio.
	TransportTwilio Transport = "twilio"
	// TransportBrowser is a browser session speaking the same frame shapes
	// with model-native audio already negotiated.
	TransportBrowser Transport = "browser"
)

// mediaPacket is the packet duration used when pacing model audio back onto
// the call. Twilio media streams run on 20 ms frames.
const mediaPacket = 20 * time.Millisecond

type callFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
}

type startPayload struct {
	StreamSid   string   `json:"streamSid"`
	AccountSid  string   `json:"accountSid,omitempty"`
	CallSid     string   `json:"callSid,omitempty"`
	Tracks      []string `json:"tracks,omitempty"`
	MediaFormat struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

// modelSink is what the call link needs from its model side.
type modelSink interface {
	AppendAudio(pcm []byte) error
	AudioOut() io.Reader
}

// CallLink owns the single inbound connection representing the live call.
// It extracts control/audio frames, forwards converted audio to the model
// link, and writes model audio back tagged with the latched stream id.
type CallLink struct {
	conn      *websocket.Conn
	adapter   codec.Adapter
	transport Transport
	model     modelSink
	logger    *slog.Logger

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	streamSid string
}

func newCallLink(conn *websocket.Conn, transport Transport, model modelSink, logger *slog.Logger) *CallLink {
	var adapter codec.Adapter = codec.ULaw{}
	if transport == TransportBrowser {
		adapter = codec.Passthrough{}
	}
	return &CallLink{
		conn:      conn,
		adapter:   adapter,
		transport: transport,
		model:     model,
		logger:    logger,
		sendCh:    make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

// StreamSid returns the stream identifier latched from the start frame.
func (c *CallLink) StreamSid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSid
}

func (c *CallLink) latchStreamSid(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamSid == "" {
		c.streamSid = sid
	}
}

// Close tears the call socket down. Idempotent; unblocks Run.
func (c *CallLink) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	return nil
}

func (c *CallLink) Done() <-chan struct{} {
	return c.done
}

// enqueue hands a frame to the single writer goroutine. Drops when the
// writer is backed up; audio must never block the relay.
func (c *CallLink) enqueue(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to marshal call frame", slog.Any("err", err))
		return
	}
	select {
	case c.sendCh <- data:
	case <-c.done:
	default:
		c.logger.Debug("call send queue full, dropping frame")
	}
}

// SendClear asks the transport to flush queued playback. Sent on barge-in.
func (c *CallLink) SendClear() {
	sid := c.StreamSid()
	if sid == "" {
		return
	}
	c.enqueue(callFrame{Event: "clear", StreamSid: sid})
}

// Run drives the link: a single writer goroutine, a pump draining model
// audio, and the frame read loop. Returns when the transport stops or the
// socket errors; the caller tears the session down either way.
func (c *CallLink) Run() error {
	go c.writeLoop()
	go c.pumpModelAudio()
	defer c.Close()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return &LinkError{Link: "call", Err: err}
		}
		if kind != websocket.TextMessage {
			continue
		}

		var frame callFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("unparseable call frame", slog.Any("err", err))
			continue
		}

		stop, err := c.handleFrame(frame)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// handleFrame processes one inbound frame. A malformed audio payload is
// dropped and the stream continues; only transport-level failures escalate.
func (c *CallLink) handleFrame(frame callFrame) (stop bool, err error) {
	switch frame.Event {
	case "start":
		sid := frame.StreamSid
		if frame.Start != nil && frame.Start.StreamSid != "" {
			sid = frame.Start.StreamSid
		}
		c.latchStreamSid(sid)
		c.logger.Info("call stream started",
			slog.String("stream_sid", sid),
			slog.String("transport", string(c.transport)),
		)

	case "media":
		if frame.Media == nil {
			return false, nil
		}
		raw, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		if err != nil {
			c.logger.Debug("bad media payload, dropping frame", slog.Any("err", err))
			return false, nil
		}
		pcm, err := c.adapter.ToModel(raw)
		if err != nil {
			var cerr *codec.Error
			if errors.As(err, &cerr) {
				c.logger.Debug("codec rejected frame", slog.String("origin", string(cerr.Origin)), slog.String("reason", cerr.Reason))
				return false, nil
			}
			return false, err
		}
		if err := c.model.AppendAudio(pcm); err != nil {
			return false, err
		}

	case "stop":
		c.logger.Info("call stream stopped", slog.String("stream_sid", c.StreamSid()))
		return true, nil

	case "connected", "mark", "dtmf":
		// Present on the wire, nothing to relay.

	default:
		c.logger.Debug("unknown call frame", slog.String("event", frame.Event))
	}
	return false, nil
}

func (c *CallLink) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("call write failed", slog.Any("err", err))
				_ = c.Close()
				return
			}
		}
	}
}

// pumpModelAudio drains buffered model audio in fixed packets, converts it
// to the call encoding and tags each media frame with the latched stream id
// so the transport sequences playback correctly.
func (c *CallLink) pumpModelAudio() {
	chunk := codec.NewFixedAudioChunkReader(c.model.AudioOut(), codec.ModelRate, mediaPacket, codec.BytesPerSample, 1)
	buf := make([]byte, codec.ChunkSize(codec.ModelRate, mediaPacket, codec.BytesPerSample, 1))

	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := chunk.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			// Buffer reset on barge-in surfaces as a transient read error.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		sid := c.StreamSid()
		if sid == "" {
			// No start frame yet; audio has nowhere to go.
			continue
		}

		out, err := c.adapter.ToCall(buf[:n])
		if err != nil {
			var cerr *codec.Error
			if errors.As(err, &cerr) {
				c.logger.Debug("codec rejected model frame", slog.String("reason", cerr.Reason))
				continue
			}
			c.logger.Error("model audio conversion failed", slog.Any("err", err))
			continue
		}

		c.enqueue(callFrame{
			Event:     "media",
			StreamSid: sid,
			Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(out)},
		})
	}
}

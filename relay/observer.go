package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxwire/voxwire-go/events"
)

// observerQueueSize bounds the fan-out queue. The observer is a read-only
// tap; when it cannot keep up, events are dropped rather than ever blocking
// the relay.
const observerQueueSize = 256

// Observer owns the single monitoring-UI connection. It receives a copy of
// every event the relay classifies, in arrival order, and feeds
// observer-originated configuration updates back into the active model link.
type Observer struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// onSessionUpdate forwards a configuration update to the relay.
	onSessionUpdate func(events.SessionUpdate)

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newObserver(conn *websocket.Conn, onSessionUpdate func(events.SessionUpdate), logger *slog.Logger) *Observer {
	return &Observer{
		conn:            conn,
		logger:          logger,
		onSessionUpdate: onSessionUpdate,
		sendCh:          make(chan []byte, observerQueueSize),
		done:            make(chan struct{}),
	}
}

func (o *Observer) Close() error {
	o.closeOnce.Do(func() {
		close(o.done)
		_ = o.conn.Close()
	})
	return nil
}

func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Tap queues one event for the observer. Never blocks; drops when the
// observer is slow or gone.
func (o *Observer) Tap(raw []byte) {
	select {
	case o.sendCh <- raw:
	case <-o.done:
	default:
		o.logger.Debug("observer queue full, dropping event")
	}
}

// Run drives the single writer goroutine and the inbound read loop until
// the socket goes away.
func (o *Observer) Run() {
	go o.writeLoop()
	defer o.Close()

	for {
		kind, data, err := o.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		env, err := events.Parse[events.Envelope](data)
		if err != nil {
			o.logger.Debug("unparseable observer event", slog.Any("err", err))
			continue
		}

		switch env.Type {
		case events.TypeSessionUpdate:
			var evt events.SessionUpdateEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				o.logger.Debug("bad session.update from observer", slog.Any("err", err))
				continue
			}
			if o.onSessionUpdate != nil {
				o.onSessionUpdate(evt.Session)
			}
		default:
			// The observer watches; it does not drive the conversation.
			o.logger.Debug("ignoring observer event", slog.String("type", env.Type))
		}
	}
}

func (o *Observer) writeLoop() {
	for {
		select {
		case <-o.done:
			return
		case data := <-o.sendCh:
			if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				o.logger.Debug("observer write failed", slog.Any("err", err))
				_ = o.Close()
				return
			}
		}
	}
}

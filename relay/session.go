package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxwire/voxwire-go/events"
	"github.com/voxwire/voxwire-go/tool"
)

// State is the session lifecycle. Transitions are monotonic; a closed
// session is never resurrected and CLOSING never re-enters ACTIVE.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one active call: one call link, one model link, the negotiated
// configuration, and the lifecycle state.
type Session struct {
	ID string

	mu     sync.Mutex
	state  State
	config events.SessionUpdate

	call   *CallLink
	model  *ModelLink
	logger *slog.Logger
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition advances the lifecycle. Backward moves are refused, which also
// rules out CLOSING→ACTIVE.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to <= s.state {
		return false
	}
	s.logger.Debug("session state",
		slog.String("session_id", s.ID),
		slog.String("from", s.state.String()),
		slog.String("to", to.String()),
	)
	s.state = to
	return true
}

func (s *Session) setConfig(c events.SessionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
}

func (s *Session) Config() events.SessionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Relay wires one call link to one model link to at most one observer for
// the lifetime of a call, and enforces the single-active-session policy:
// the process holds one current call connection and one current observer,
// last writer wins.
type Relay struct {
	cfg    *relayConfig
	logger *slog.Logger

	calls     Slot[*CallLink]
	observers Slot[*Observer]

	mu      sync.Mutex
	active  *Session
	pending *events.SessionUpdate // observer config received while no session is up
}

func New(opts ...Option) *Relay {
	cfg := &relayConfig{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	return &Relay{
		cfg:    cfg,
		logger: cfg.logger,
	}
}

// Registry exposes the function dispatcher for capability discovery and
// registration of additional handlers.
func (r *Relay) Registry() *tool.Registry {
	return r.cfg.registry
}

// Active returns the current session, if any.
func (r *Relay) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// sessionConfig builds the negotiated configuration for a new session:
// relay defaults overlaid with whatever the observer pushed while idle.
func (r *Relay) sessionConfig() events.SessionUpdate {
	tools := r.cfg.registry.List()
	toolChoice := tool.ChoiceNone
	if len(tools) > 0 {
		toolChoice = tool.ChoiceAuto
	}

	su := events.SessionUpdate{
		Voice:             r.cfg.voice,
		InputAudioFormat:  events.AudioFormatPCM16,
		OutputAudioFormat: events.AudioFormatPCM16,
		Temperature:       r.cfg.temperature,
		Speed:             r.cfg.speed,
		Instructions:      r.cfg.instructions,
		Modalities:        []string{"text", "audio"},
		ToolChoice:        toolChoice,
		Tools:             tools,
		TurnDetection: &events.TurnDetection{
			Type:              "server_vad",
			CreateResponse:    true,
			InterruptResponse: true,
		},
	}

	r.mu.Lock()
	if r.pending != nil {
		su = su.Merge(*r.pending)
		r.pending = nil
	}
	r.mu.Unlock()

	return su
}

// HandleCall runs one complete session over an accepted call connection.
// Blocks until the session is closed. A second call arriving while one is
// active closes the first (Connection Singleton Policy).
func (r *Relay) HandleCall(conn *websocket.Conn, transport Transport) {
	sess := &Session{
		ID:     uuid.NewString(),
		state:  StateConnecting,
		logger: r.logger,
	}
	sess.setConfig(r.sessionConfig())

	model := newModelLink(r.cfg, sess.Config(), r.logger)
	call := newCallLink(conn, transport, model, r.logger)
	sess.call, sess.model = call, model

	r.mu.Lock()
	r.active = sess
	r.mu.Unlock()

	// Installing the new call link closes any displaced one; the displaced
	// session's HandleCall observes its socket close and finishes teardown.
	r.calls.Replace(call)
	defer r.calls.Clear(call)

	model.tap = func(eventType string, raw []byte) {
		r.tapObserver(raw)
	}
	model.onSpeech = func(started bool) {
		if started {
			call.SendClear()
		}
	}

	r.logger.Info("session connecting",
		slog.String("session_id", sess.ID),
		slog.String("transport", string(transport)),
	)

	if err := model.Open(context.Background()); err != nil {
		r.logger.Error("model handshake failed",
			slog.String("session_id", sess.ID),
			slog.Any("err", err),
		)
		sess.transition(StateClosing)
		_ = call.Close()
		r.finish(sess)
		return
	}

	sess.transition(StateActive)
	r.logger.Info("session active", slog.String("session_id", sess.ID))

	// Model socket closure is the model side's only teardown signal.
	go func() {
		<-model.Done()
		if sess.State() < StateClosing {
			sess.transition(StateClosing)
		}
		_ = call.Close()
	}()

	if err := call.Run(); err != nil {
		r.logger.Error("call link failed",
			slog.String("session_id", sess.ID),
			slog.Any("err", err),
		)
	}

	sess.transition(StateClosing)
	model.Close()
	<-model.Done()
	r.finish(sess)
}

// finish completes teardown: both links confirmed closed, session discarded.
func (r *Relay) finish(sess *Session) {
	sess.transition(StateClosed)

	r.mu.Lock()
	if r.active == sess {
		r.active = nil
	}
	r.mu.Unlock()

	closing, _ := json.Marshal(map[string]any{
		"type":       "session.closed",
		"session_id": sess.ID,
	})
	r.tapObserver(closing)

	r.logger.Info("session closed", slog.String("session_id", sess.ID))
}

// HandleObserver runs the monitoring connection. Blocks until it goes away.
// A second observer displaces the first.
func (r *Relay) HandleObserver(conn *websocket.Conn) {
	obs := newObserver(conn, r.ApplySessionUpdate, r.logger)
	r.observers.Replace(obs)
	defer r.observers.Clear(obs)

	r.logger.Info("observer connected")
	obs.Run()
	r.logger.Info("observer disconnected")
}

func (r *Relay) tapObserver(raw []byte) {
	if obs, ok := r.observers.Current(); ok {
		obs.Tap(raw)
	}
}

// ApplySessionUpdate applies an observer-originated configuration update to
// the active model link, or caches it for the next handshake when no
// session is up.
func (r *Relay) ApplySessionUpdate(su events.SessionUpdate) {
	r.mu.Lock()
	sess := r.active
	r.mu.Unlock()

	if sess != nil && sess.State() == StateActive {
		merged := sess.Config().Merge(su)
		sess.setConfig(merged)
		go func() {
			if err := sess.model.SessionUpdate(merged); err != nil {
				r.logger.Error("session update failed", slog.Any("err", err))
			}
		}()
		return
	}

	r.mu.Lock()
	if r.pending == nil {
		r.pending = &su
	} else {
		merged := r.pending.Merge(su)
		r.pending = &merged
	}
	r.mu.Unlock()
	r.logger.Debug("cached session update for next handshake")
}

// PendingConfig reports the cached observer configuration, if any.
func (r *Relay) PendingConfig() (events.SessionUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return events.SessionUpdate{}, false
	}
	return *r.pending, true
}

// HangUp closes the current call connection, ending the active session.
// Used by the end_call tool so the model can terminate the conversation.
func (r *Relay) HangUp() {
	if call, ok := r.calls.Current(); ok {
		_ = call.Close()
	}
}

// Shutdown closes the current call and observer connections.
func (r *Relay) Shutdown() {
	if call, ok := r.calls.Current(); ok {
		_ = call.Close()
	}
	if obs, ok := r.observers.Current(); ok {
		_ = obs.Close()
	}
}

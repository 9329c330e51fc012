package events

import "encoding/json"
import nanoid "github.com/matoous/go-nanoid/v2"

// Event type names for the subset of the realtime protocol the relay
// classifies. Anything else is forwarded verbatim.
const (
	TypeError                   = "error"
	TypeSessionCreated          = "session.created"
	TypeSessionUpdate           = "session.update"
	TypeSessionUpdated          = "session.updated"
	TypeConversationItemCreate  = "conversation.item.create"
	TypeConversationItemCreated = "conversation.item.created"
	TypeInputAudioBufferAppend  = "input_audio_buffer.append"
	TypeSpeechStarted           = "input_audio_buffer.speech_started"
	TypeSpeechStopped           = "input_audio_buffer.speech_stopped"
	TypeResponseCreate          = "response.create"
	TypeResponseDone            = "response.done"
	TypeResponseAudioDelta      = "response.audio.delta"
	TypeResponseAudioDone       = "response.audio.done"
	TypeResponseTranscriptDelta = "response.audio_transcript.delta"
	TypeResponseTranscriptDone  = "response.audio_transcript.done"
)

type BaseEvent struct {
	EventID        string  `json:"event_id"`
	Type           string  `json:"type"`
	PreviousItemID *string `json:"previous_item_id,omitempty"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}

// Envelope is the minimal decode used to route an inbound event by type
// before the full parse.
type Envelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

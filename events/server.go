package events

import "fmt"

type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
)

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ResponseCreateEvent struct {
	BaseEvent
	Response ResponseCreatePayload `json:"response"`
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	ToolChoice        string      `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   int         `json:"max_output_tokens,omitempty"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponseDonePayload `json:"response"`
}

type ResponseDonePayload struct {
	ID     string               `json:"id"`
	Status string               `json:"status"`
	Output []ResponseOutputItem `json:"output"`
}

// ResponseOutputItem is one item of a finished response. For
// Type "function_call" the Name/CallID/Arguments triple is set.
type ResponseOutputItem struct {
	ID        string                    `json:"id"`
	Type      string                    `json:"type"`
	Status    string                    `json:"status"`
	Role      string                    `json:"role,omitempty"`
	Content   []ConversationItemContent `json:"content,omitempty"`
	Name      string                    `json:"name,omitempty"`
	CallID    string                    `json:"call_id,omitempty"`
	Arguments string                    `json:"arguments,omitempty"`
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseId  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	InputIndex  int    `json:"input_index"`
	ItemID      string `json:"item_id"`
	Delta       string `json:"delta"`
}

type ResponseAudioDone struct {
	BaseEvent
	ResponseId  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	InputIndex  int    `json:"input_index"`
	ItemID      string `json:"item_id"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseId  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	InputIndex  int    `json:"input_index"`
	ItemID      string `json:"item_id"`
	Delta       string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseId  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	InputIndex  int    `json:"input_index"`
	ItemID      string `json:"item_id"`
	Transcript  string `json:"transcript"`
}

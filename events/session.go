package events

import "github.com/voxwire/voxwire-go/tool"

type Session struct {
	ID                      string         `json:"id,omitempty"`
	Object                  string         `json:"object,omitempty"`
	ExpiresAt               int64          `json:"expires_at,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format,omitempty"`
	Model                   string         `json:"model,omitempty"`
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	OutputAudioFormat       string         `json:"output_audio_format,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens string         `json:"max_response_output_tokens,omitempty"`
	Speed                   float64        `json:"speed,omitempty"`
	Tools                   *[]interface{} `json:"tools,omitempty"`
}

// SessionUpdate is the negotiated configuration sent with session.update.
// Re-sendable at any time; the model applies last write wins.
type SessionUpdate struct {
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioFormat        AudioFormat    `json:"input_audio_format,omitempty"`
	Model                   string         `json:"model,omitempty"`
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	OutputAudioFormat       AudioFormat    `json:"output_audio_format,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens string         `json:"max_response_output_tokens,omitempty"`
	Speed                   float64        `json:"speed,omitempty"`
	Tools                   []tool.Tool    `json:"tools,omitempty"`
	ToolChoice              tool.Choice    `json:"tool_choice,omitempty"`
}

// Merge overlays the non-zero fields of other onto a copy of s. Used when an
// observer pushes a partial session.update over an already negotiated config.
func (s SessionUpdate) Merge(other SessionUpdate) SessionUpdate {
	out := s
	if other.TurnDetection != nil {
		out.TurnDetection = other.TurnDetection
	}
	if other.InputAudioFormat != "" {
		out.InputAudioFormat = other.InputAudioFormat
	}
	if other.Model != "" {
		out.Model = other.Model
	}
	if len(other.Modalities) > 0 {
		out.Modalities = other.Modalities
	}
	if other.Instructions != "" {
		out.Instructions = other.Instructions
	}
	if other.Voice != "" {
		out.Voice = other.Voice
	}
	if other.OutputAudioFormat != "" {
		out.OutputAudioFormat = other.OutputAudioFormat
	}
	if other.Temperature != 0 {
		out.Temperature = other.Temperature
	}
	if other.MaxResponseOutputTokens != "" {
		out.MaxResponseOutputTokens = other.MaxResponseOutputTokens
	}
	if other.Speed != 0 {
		out.Speed = other.Speed
	}
	if other.Tools != nil {
		out.Tools = other.Tools
	}
	if other.ToolChoice != "" {
		out.ToolChoice = other.ToolChoice
	}
	return out
}

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}

package events

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionUpdate `json:"session"`
}

type ConversationItemCreateEvent struct {
	BaseEvent
	Item ConversationItem `json:"item"`
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	// Audio is base64-encoded model-native PCM.
	Audio string `json:"audio"`
}

// ConversationItem is the inner “item” object.
type ConversationItem struct {
	ID        string                    `json:"id,omitempty"`
	Type      string                    `json:"type"`
	Status    string                    `json:"status,omitempty"`
	Role      string                    `json:"role,omitempty"`
	Content   []ConversationItemContent `json:"content,omitempty"`
	Name      string                    `json:"name,omitempty"`
	CallID    string                    `json:"call_id,omitempty"`
	Arguments string                    `json:"arguments,omitempty"`
	Output    string                    `json:"output,omitempty"`
}

type ConversationItemContent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxwire/voxwire-go/tool"
)

func TestSessionUpdateMergeOverlaysNonZeroFields(t *testing.T) {
	base := SessionUpdate{
		Voice:            "coral",
		Instructions:     "Keep answers short.",
		Temperature:      0.8,
		Speed:            1.1,
		InputAudioFormat: AudioFormatPCM16,
		TurnDetection:    &TurnDetection{Type: "server_vad"},
	}

	merged := base.Merge(SessionUpdate{Voice: "ash", Temperature: 0.5})

	assert.Equal(t, "ash", merged.Voice)
	assert.Equal(t, 0.5, merged.Temperature)
	assert.Equal(t, "Keep answers short.", merged.Instructions)
	assert.Equal(t, 1.1, merged.Speed)
	assert.Equal(t, AudioFormatPCM16, merged.InputAudioFormat)
	assert.Equal(t, "server_vad", merged.TurnDetection.Type)
}

func TestSessionUpdateMergeZeroIsNoop(t *testing.T) {
	base := SessionUpdate{
		Voice:       "coral",
		Temperature: 0.8,
		ToolChoice:  tool.ChoiceAuto,
		Tools:       []tool.Tool{tool.Func("get_time", "Get the time", nil)},
	}

	merged := base.Merge(SessionUpdate{})

	assert.Equal(t, base, merged)
}

func TestSessionUpdateMergeReplacesTools(t *testing.T) {
	base := SessionUpdate{
		Tools:      []tool.Tool{tool.Func("get_time", "Get the time", nil)},
		ToolChoice: tool.ChoiceAuto,
	}

	merged := base.Merge(SessionUpdate{
		Tools:      []tool.Tool{},
		ToolChoice: tool.ChoiceNone,
	})

	assert.Empty(t, merged.Tools)
	assert.NotNil(t, merged.Tools, "empty list still overrides")
	assert.Equal(t, tool.ChoiceNone, merged.ToolChoice)
}

func TestSessionUpdateMergeDoesNotMutateReceiver(t *testing.T) {
	base := SessionUpdate{Voice: "coral"}
	_ = base.Merge(SessionUpdate{Voice: "ash"})
	assert.Equal(t, "coral", base.Voice)
}

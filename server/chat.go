package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
)

var errPublicURL = errors.New("PUBLIC_URL not configured")

type chatRequest struct {
	Message             string            `json:"message"`
	ConversationHistory []chatHistoryItem `json:"conversation_history"`
}

type chatHistoryItem struct {
	Role    string `json:"role"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// handleChat is the text-chat fallback: a plain completion round-trip with
// the prior conversation replayed. No relay state is involved.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are a helpful AI assistant. Be conversational and friendly."),
	}
	for _, item := range req.ConversationHistory {
		if len(item.Content) == 0 || item.Content[0].Text == "" {
			continue
		}
		switch item.Role {
		case "user":
			messages = append(messages, openai.UserMessage(item.Content[0].Text))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(item.Content[0].Text))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	completion, err := s.openai.Chat.Completions.New(r.Context(), openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(s.cfg.ChatModel),
		MaxTokens:   openai.Int(500),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		s.logger.Error("chat completion failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to get AI response")
		return
	}
	if len(completion.Choices) == 0 {
		writeError(w, http.StatusInternalServerError, "Failed to get AI response")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response": completion.Choices[0].Message.Content,
	})
}

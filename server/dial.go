package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type dialRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// handleDial places an outbound call through the telephony provider's REST
// API, pointed at the /twiml redirect so the answered call streams into the
// relay.
func (s *Server) handleDial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.twilio == nil {
		writeError(w, http.StatusInternalServerError, "Twilio client not initialized")
		return
	}

	var req dialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.From == "" {
		writeError(w, http.StatusBadRequest, "Missing 'to' or 'from' phone number")
		return
	}

	webhookURL, err := s.twimlURL()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	params := &twilioapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(webhookURL)
	params.SetMethod("POST")

	call, err := s.twilio.Api.CreateCall(params)
	if err != nil {
		s.logger.Error("outbound call failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "Failed to create call")
		return
	}

	resp := map[string]any{"success": true}
	if call.Sid != nil {
		resp["callSid"] = *call.Sid
	}
	if call.Status != nil {
		resp["status"] = *call.Status
	}
	if call.To != nil {
		resp["to"] = *call.To
	}
	if call.From != nil {
		resp["from"] = *call.From
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) twimlURL() (string, error) {
	u, err := url.Parse(s.cfg.PublicURL)
	if err != nil || s.cfg.PublicURL == "" {
		return "", errPublicURL
	}
	u.Path = "/twiml"
	return u.String(), nil
}

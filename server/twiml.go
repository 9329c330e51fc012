package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"text/template"
)

// twimlTemplate is the call-redirect document handed to Twilio: answer the
// call and stream both directions of audio to the relay's /call socket.
var twimlTemplate = template.Must(template.New("twiml").Parse(
	`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="{{.WSURL}}" />
  </Connect>
</Response>
`))

func (s *Server) handleTwiml(w http.ResponseWriter, _ *http.Request) {
	wsURL, err := s.callStreamURL()
	if err != nil {
		s.logger.Error("cannot build twiml", slog.Any("err", err))
		http.Error(w, "PUBLIC_URL not configured", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := twimlTemplate.Execute(&buf, map[string]string{"WSURL": wsURL}); err != nil {
		s.logger.Error("twiml template failed", slog.Any("err", err))
		http.Error(w, "Error generating TwiML", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Package httpapi assembles the service's HTTP surface: health, debug and
// the session websocket.
package httpapi

import (
	"encoding/json"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/fixmate/fixmate/internal/session"
	"github.com/fixmate/fixmate/internal/speech/registry"
)

// DebugInfo is the /debug response body.
type DebugInfo struct {
	SessionCount int                    `json:"sessionCount"`
	Sessions     []session.SessionDebug `json:"sessions"`
	TTSBackends  []string               `json:"ttsBackends"`
	STTBackends  []string               `json:"sttBackends"`
}

// NewMux builds the service mux. The websocket handler is mounted at /ws.
func NewMux(sessions *session.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]bool{"ok": true})
	})

	mux.HandleFunc("GET /debug", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, DebugInfo{
			SessionCount: sessions.SessionCount(),
			Sessions:     sessions.DebugSnapshot(),
			TTSBackends:  registry.TTS.List(),
			STTBackends:  registry.ASR.List(),
		})
	})

	mux.Handle("/ws", sessions)

	return mux
}

// H2CHandler wraps a handler with h2c support for unencrypted HTTP/2.
func H2CHandler(handler http.Handler) http.Handler {
	return h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

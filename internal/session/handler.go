package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pitabwire/util"

	"github.com/fixmate/fixmate/pkg/procedure"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
	pongWait     = 60 * time.Second
	maxFrameSize = 1 << 20
)

// Handler upgrades websocket connections and runs one session per
// connection: a read loop as the session actor and a single writer
// goroutine draining the session's outbound channel.
type Handler struct {
	deps Deps
	cfg  Config

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHandler creates a websocket session handler.
func NewHandler(deps Deps, cfg Config) *Handler {
	return &Handler{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins in demo mode.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Log(r.Context()).WithError(err).Error("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := newSession(ctx, h.deps, h.cfg)

	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()

	log := util.Log(ctx).With("session_id", sess.ID)
	log.Info("session connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, sess)
	}()

	h.readLoop(conn, sess)

	sess.HandleStop("disconnect")
	cancel()
	wg.Wait()
	conn.Close()

	h.mu.Lock()
	delete(h.sessions, sess.ID)
	h.mu.Unlock()
	log.Info("session disconnected")
}

// readLoop is the session actor: every inbound frame is handled in order
// on this goroutine. A malformed frame yields an error frame, never a
// connection close.
func (h *Handler) readLoop(conn *websocket.Conn, sess *Session) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msgType {
		case websocket.BinaryMessage:
			sess.HandleBinaryAudio(data)
			continue
		case websocket.TextMessage:
		default:
			continue
		}

		frameType, payload, decErr := DecodeClient(data)
		if decErr != nil {
			sess.sendError(decErr.Code, decErr.Error(), false)
			continue
		}

		switch frameType {
		case TypeSessionStart:
			sess.HandleStart(payload.(*SessionStart))
		case TypeUserText:
			sess.HandleUserText(payload.(*UserText))
		case TypeVoiceCommand:
			sess.HandleVoiceCommand(payload.(*VoiceCommand))
		case TypeBargeIn:
			sess.HandleBargeIn(payload.(*BargeIn))
		case TypeAudioStart:
			sess.HandleAudioStart(payload.(*AudioStart))
		case TypeAudioChunk:
			sess.HandleAudioChunk(payload.(*AudioChunk))
		case TypeAudioEnd:
			sess.HandleAudioEnd(payload.(*AudioEnd))
		case TypeSessionStop:
			// Idempotent; the client may keep the socket open after stopping.
			sess.HandleStop("client")
		}
	}
}

// writeLoop is the single writer for the connection. All server frames of
// one session funnel through here, preserving order.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		case frame := <-sess.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

// SessionDebug is one session's row in the /debug surface.
type SessionDebug struct {
	ID      string             `json:"id"`
	Started bool               `json:"started"`
	State   procedure.Snapshot `json:"state"`
	Metrics Metrics            `json:"lastStreamMetrics"`
}

// DebugSnapshot returns the live session table for the /debug endpoint.
func (h *Handler) DebugSnapshot() []SessionDebug {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SessionDebug, 0, len(h.sessions))
	for _, sess := range h.sessions {
		out = append(out, SessionDebug{
			ID:      sess.ID,
			Started: sess.Started(),
			State:   sess.StateSnapshot(),
			Metrics: sess.LastMetrics(),
		})
	}
	return out
}

// SessionCount returns the number of live sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

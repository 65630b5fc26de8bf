package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emberchat/ember/internal/api/middleware"
	"github.com/emberchat/ember/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// originChecker accepts browser upgrade requests only from the configured
// origins. Requests without an Origin header (non-browser clients) pass.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// SyncCommand is one client request on the sync socket.
type SyncCommand struct {
	Type           string `json:"type"` // open, close, send, seen
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Attachment     string `json:"attachment,omitempty"` // base64 image bytes
	ContentType    string `json:"content_type,omitempty"`
}

// syncError is pushed to the client when a command fails; the session and
// its feeds stay up.
type syncError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// syncConn serializes writes; gorilla connections support one writer at a
// time and both pumps write.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *syncConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *syncConn) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, nil)
}

// Sync upgrades the connection to a websocket and runs a sync session over
// it: the server pushes chat-list and message events, the client sends
// open/close/send/seen commands. Auth arrives via the token query parameter
// since browsers cannot set headers on websocket requests.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	conn := &syncConn{conn: raw}

	// The request context dies with the HTTP handler; the session outlives
	// it and is torn down when either pump exits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(user, h.sender, h.logger)
	sess.Start(ctx)
	defer sess.Close()

	go h.writePump(conn, sess)
	h.readPump(ctx, conn, sess)
}

// readPump consumes client commands until the connection drops.
func (h *Handler) readPump(ctx context.Context, conn *syncConn, sess *session.Session) {
	defer conn.conn.Close()
	conn.conn.SetReadLimit(64 * 1024)
	conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd SyncCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.pushError(conn, "invalid JSON command")
			continue
		}

		if err := h.dispatch(ctx, sess, cmd); err != nil {
			h.pushError(conn, err.Error())
		}
	}
}

// dispatch applies one command to the session.
func (h *Handler) dispatch(ctx context.Context, sess *session.Session, cmd SyncCommand) error {
	switch cmd.Type {
	case "open":
		convID, err := uuid.Parse(cmd.ConversationID)
		if err != nil {
			return errors.New("invalid conversation ID")
		}
		return sess.Open(ctx, convID)

	case "close":
		sess.CloseConversation()
		return nil

	case "send":
		var attachment []byte
		if cmd.Attachment != "" {
			var err error
			attachment, err = base64.StdEncoding.DecodeString(cmd.Attachment)
			if err != nil {
				return errors.New("attachment is not valid base64")
			}
		}
		_, err := sess.Send(ctx, cmd.Text, attachment, cmd.ContentType)
		return err

	case "seen":
		convID, err := uuid.Parse(cmd.ConversationID)
		if err != nil {
			return errors.New("invalid conversation ID")
		}
		return sess.MarkSeen(ctx, convID)

	default:
		return errors.New("unknown command type: " + cmd.Type)
	}
}

// writePump streams session events to the client and keeps the connection
// alive with pings. Exits when the session's event channel closes or a
// write fails.
func (h *Handler) writePump(conn *syncConn, sess *session.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				conn.writeControl(websocket.CloseMessage)
				return
			}
			if err := conn.writeJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.writeControl(websocket.PingMessage); err != nil {
				return
			}
		}
	}
}

func (h *Handler) pushError(conn *syncConn, msg string) {
	_ = conn.writeJSON(syncError{Type: "error", Error: msg})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emberchat/ember/internal/auth"
	"github.com/emberchat/ember/internal/block"
	"github.com/emberchat/ember/internal/chatlog"
	"github.com/emberchat/ember/internal/convo"
	"github.com/emberchat/ember/internal/session"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/summary"
	"github.com/emberchat/ember/internal/upload"
)

// usernameRegex restricts usernames to word characters, dots, and dashes.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]{2,32}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db        store.DataStore
	redis     *store.RedisStore
	log       *chatlog.Manager
	summaries *summary.Reconciler
	guard     *block.Guard
	creator   *convo.Creator
	sender    *session.Sender
	uploads   upload.Store
	tokens    *auth.Manager
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies. Websocket
// upgrades are restricted to allowedOrigins; "*" allows any origin.
func NewHandler(db store.DataStore, redis *store.RedisStore, uploads upload.Store, tokens *auth.Manager, allowedOrigins []string, logger zerolog.Logger) *Handler {
	log := chatlog.NewManager(db, redis)
	summaries := summary.NewReconciler(redis)
	guard := block.NewGuard(db)

	return &Handler{
		db:        db,
		redis:     redis,
		log:       log,
		summaries: summaries,
		guard:     guard,
		creator:   convo.NewCreator(db, summaries),
		sender:    session.NewSender(db, log, summaries, guard, uploads),
		uploads:   uploads,
		tokens:    tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// domainError maps domain errors onto HTTP responses.
func (h *Handler) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatlog.ErrConversationNotFound),
		errors.Is(err, convo.ErrConversationNotFound):
		h.Error(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, convo.ErrUserNotFound):
		h.Error(w, http.StatusNotFound, "user not found")
	case errors.Is(err, summary.ErrSummaryMissing):
		h.Error(w, http.StatusNotFound, "no chat entry for this conversation")
	case errors.Is(err, chatlog.ErrInvalidMessage):
		h.Error(w, http.StatusBadRequest, "message needs text or an attachment")
	case errors.Is(err, convo.ErrSamePair):
		h.Error(w, http.StatusBadRequest, "cannot start a conversation with yourself")
	case errors.Is(err, block.ErrSelfBlock):
		h.Error(w, http.StatusBadRequest, "cannot block yourself")
	case errors.Is(err, chatlog.ErrNotParticipant),
		errors.Is(err, convo.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "not a participant of this conversation")
	case errors.Is(err, block.ErrBlocked):
		h.Error(w, http.StatusForbidden, "sending is not allowed between these users")
	default:
		h.logger.Error().Err(err).Msg("internal error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeUsername trims whitespace and strips control characters.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}

// isValidUsername validates usernames.
func isValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/api/middleware"
	"github.com/emberchat/ember/internal/convo"
	"github.com/emberchat/ember/internal/models"
)

// CreateChatRequest represents the create conversation request body.
type CreateChatRequest struct {
	UserID string `json:"user_id"` // the other participant
}

// CreateChatResponse represents the create conversation response.
type CreateChatResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	// Incomplete lists participants whose summary registration is still
	// missing after a partial creation; retry via the repair endpoint.
	Incomplete []string `json:"incomplete,omitempty"`
}

// CreateChat handles starting a new conversation with another user.
// Duplicate conversations between the same pair are allowed.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	peerID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	conv, err := h.creator.Create(r.Context(), user.ID, peerID)

	var partial *convo.PartialCreationError
	if errors.As(err, &partial) {
		// The conversation exists but is invisible to some participants.
		// Report it distinctly so the client can retry just the repair.
		missing := make([]string, len(partial.Missing))
		for i, id := range partial.Missing {
			missing[i] = id.String()
		}
		h.JSON(w, http.StatusAccepted, CreateChatResponse{
			ID:         partial.ConversationID.String(),
			CreatedAt:  conv.CreatedAt.UnixMilli(),
			Incomplete: missing,
		})
		return
	}
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, CreateChatResponse{
		ID:        conv.ID.String(),
		CreatedAt: conv.CreatedAt.UnixMilli(),
	})
}

// RepairChat re-attempts the caller's missing summary registration for a
// partially created conversation.
func (h *Handler) RepairChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	if err := h.creator.Repair(r.Context(), convID, user.ID); err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// ChatListResponse represents the conversation list response.
type ChatListResponse struct {
	Chats []models.RenderedSummary `json:"chats"`
}

// ListChats returns the caller's summaries, newest first, with counterpart
// records resolved and redacted per the block guard. A failed counterpart
// lookup degrades that entry to a placeholder instead of failing the list.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	list, err := h.summaries.List(r.Context(), user.ID)
	if err != nil {
		h.domainError(w, err)
		return
	}

	rendered := make([]models.RenderedSummary, 0, len(list))
	for _, sum := range list {
		rendered = append(rendered, models.RenderedSummary{
			ChatSummary: sum,
			Peer:        h.peerView(r, user, sum.PeerID),
		})
	}

	h.JSON(w, http.StatusOK, ChatListResponse{Chats: rendered})
}

// peerView resolves and redacts a counterpart record, degrading to a
// placeholder on any failure.
func (h *Handler) peerView(r *http.Request, viewer *models.User, peerID string) *models.User {
	id, err := uuid.Parse(peerID)
	if err != nil {
		return &models.User{Username: models.RedactedUsername}
	}
	placeholder := &models.User{ID: id, Username: models.RedactedUsername}

	peer, err := h.db.GetUserByID(r.Context(), id)
	if err != nil || peer == nil {
		return placeholder
	}
	view, err := h.guard.RenderCounterpart(r.Context(), viewer.ID, peer)
	if err != nil {
		return placeholder
	}
	return view
}

// MessagesResponse represents a conversation's message sequence.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// GetMessages returns the full ordered log of a conversation the caller
// participates in. Block state never hides history, only identities.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	conv, err := h.db.GetConversation(r.Context(), convID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if !conv.HasParticipant(user.ID) {
		h.Error(w, http.StatusForbidden, "not a participant of this conversation")
		return
	}

	messages, err := h.log.Snapshot(r.Context(), convID)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// SendMessageRequest represents the send message request body. Attachments
// are uploaded first via POST /attachments; the returned URL goes here.
type SendMessageRequest struct {
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// SendMessageResponse represents the send message response.
type SendMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// SendMessage handles sending a message into a conversation.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Text) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "text too long (max 4096 bytes)")
		return
	}

	msg, err := h.sender.Send(r.Context(), user.ID, convID, req.Text, req.AttachmentURL)
	if err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
	})
}

// MarkSeen flips the caller's own summary entry to seen. The counterpart's
// entry is untouched.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID format")
		return
	}

	if err := h.summaries.MarkSeen(r.Context(), user.ID, convID); err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "seen"})
}

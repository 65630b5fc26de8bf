package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/block"
	"github.com/emberchat/ember/internal/chatlog"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/models"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/summary"
	"github.com/emberchat/ember/internal/upload"
)

// Sender runs the full send pipeline: block check, attachment upload,
// log append, summary reconciliation. Shared by the HTTP send endpoint and
// by live sync sessions.
type Sender struct {
	db        store.DataStore
	log       *chatlog.Manager
	summaries *summary.Reconciler
	guard     *block.Guard
	uploads   upload.Store
}

// NewSender creates a new Sender.
func NewSender(db store.DataStore, log *chatlog.Manager, summaries *summary.Reconciler, guard *block.Guard, uploads upload.Store) *Sender {
	return &Sender{db: db, log: log, summaries: summaries, guard: guard, uploads: uploads}
}

// Send delivers one message into a conversation: block check, log append,
// summary reconciliation. The sender's own summary is never updated
// optimistically; it converges through the change feed like everyone
// else's.
func (s *Sender) Send(ctx context.Context, senderID, conversationID uuid.UUID, text, attachmentURL string) (*models.Message, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", chatlog.ErrConversationNotFound, conversationID)
	}
	if !conv.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: %s", chatlog.ErrNotParticipant, senderID)
	}

	ok, err := s.guard.CanSend(ctx, senderID, conv.PeerOf(senderID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, block.ErrBlocked
	}

	msg, err := s.log.Append(ctx, conversationID, senderID, text, attachmentURL)
	if err != nil {
		return nil, err
	}

	if err := s.summaries.OnAppend(ctx, conv, msg); err != nil {
		// The message is in the log; summaries will disagree until the
		// next successful reconciliation for this conversation. Surface it.
		return msg, fmt.Errorf("reconcile summaries: %w", err)
	}

	return msg, nil
}

// SendWithAttachment uploads the attachment as a blocking prerequisite and
// then sends. An upload failure aborts the send before anything is
// appended.
func (s *Sender) SendWithAttachment(ctx context.Context, senderID, conversationID uuid.UUID, text string, attachment []byte, contentType string) (*models.Message, error) {
	var attachmentURL string
	if len(attachment) > 0 {
		url, err := s.uploads.Upload(ctx, attachment, contentType)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		metrics.AttachmentsUploaded.Inc()
		attachmentURL = url
	}
	return s.Send(ctx, senderID, conversationID, text, attachmentURL)
}

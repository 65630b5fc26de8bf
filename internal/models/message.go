package models

// AttachmentPreview is the summary placeholder for attachment-only messages.
const AttachmentPreview = "📷 Photo"

// Message represents one entry in a conversation's log, stored in Redis.
// Timestamps are assigned server-side by the store, strictly increasing per
// conversation, so log order and timestamp order always agree.
type Message struct {
	ID             string `json:"id"` // ULID
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"from"`
	Text           string `json:"text,omitempty"`
	AttachmentURL  string `json:"img,omitempty"`
	Timestamp      int64  `json:"ts"` // Unix ms
}

// Preview returns the human-readable one-line representation used in
// chat summaries: the text, or a placeholder for attachment-only messages.
func (m *Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	return AttachmentPreview
}

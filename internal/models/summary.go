package models

// ChatSummary is one user's denormalized view of one conversation: the
// preview line, unread state, and the timestamp the conversation list sorts
// by. Stored as a field of the user's summary hash in Redis, one field per
// conversation, so concurrent reconciliations of different conversations
// never touch each other's entries.
type ChatSummary struct {
	ConversationID string `json:"chat_id"`
	PeerID         string `json:"peer_id"`
	LastMessage    string `json:"last_message"`
	LastMessageTS  int64  `json:"last_message_ts"` // log timestamp of the previewed message, Unix ms
	Seen           bool   `json:"seen"`
	UpdatedAt      int64  `json:"updated_at"` // Unix ms
}

// RenderedSummary is a ChatSummary joined with the counterpart's user record
// (redacted when a block exists in either direction) for presentation.
type RenderedSummary struct {
	ChatSummary
	Peer *User `json:"peer,omitempty"`
}

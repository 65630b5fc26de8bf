// Package upload stores message attachments and resolves them to URLs.
package upload

import "context"

// Store uploads attachment bytes and returns a publicly addressable URL.
// Uploads are a blocking prerequisite of sending: a failed upload aborts
// the send before anything is appended.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

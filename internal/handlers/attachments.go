package handlers

import (
	"io"
	"net/http"

	"github.com/emberchat/ember/internal/api/middleware"
	"github.com/emberchat/ember/internal/metrics"
)

const maxAttachmentSize = 8 << 20 // 8 MiB

// UploadResponse represents the attachment upload response.
type UploadResponse struct {
	URL string `json:"url"`
}

// UploadAttachment stores a raw image body in the attachment bucket and
// returns its URL for use in a subsequent message send. The body is the
// file itself, not a multipart form.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if h.uploads == nil {
		h.Error(w, http.StatusServiceUnavailable, "attachment storage is not configured")
		return
	}

	contentType := r.Header.Get("Content-Type")
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		h.Error(w, http.StatusUnsupportedMediaType, "attachment must be a jpeg, png, gif or webp image")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAttachmentSize+1))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) == 0 {
		h.Error(w, http.StatusBadRequest, "empty attachment")
		return
	}
	if len(data) > maxAttachmentSize {
		h.Error(w, http.StatusRequestEntityTooLarge, "attachment too large (max 8 MiB)")
		return
	}

	url, err := h.uploads.Upload(r.Context(), data, contentType)
	if err != nil {
		h.logger.Error().Err(err).Msg("Attachment upload failed")
		h.Error(w, http.StatusInternalServerError, "failed to store attachment")
		return
	}

	metrics.AttachmentsUploaded.Inc()

	h.JSON(w, http.StatusCreated, UploadResponse{URL: url})
}

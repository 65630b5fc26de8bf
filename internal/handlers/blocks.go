package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emberchat/ember/internal/api/middleware"
)

// Block adds the target to the caller's block list. Blocking someone already
// blocked is a no-op.
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	if err := h.guard.Block(r.Context(), user.ID, target); err != nil {
		h.domainError(w, err)
		return
	}

	h.logger.Info().
		Str("blocker", user.ID.String()).
		Str("blocked", target.String()).
		Msg("User blocked")

	h.JSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

// Unblock removes the target from the caller's block list. Unblocking
// someone not blocked is a no-op.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	if err := h.guard.Unblock(r.Context(), user.ID, target); err != nil {
		h.domainError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

package handlers

import (
	"net/http"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ActionItemHandlers serves the action item tracking endpoints.
type ActionItemHandlers struct {
	store storage.ActionItemStore
}

// NewActionItemHandlers creates action item handlers.
func NewActionItemHandlers(store storage.ActionItemStore) *ActionItemHandlers {
	return &ActionItemHandlers{store: store}
}

// ListActionItems handles GET /api/action-items.
func (h *ActionItemHandlers) ListActionItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ActionItemFilter{
		Engineer: q.Get("engineer"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	}
	if filter.Status != "" && !types.IsValidActionStatus(filter.Status) {
		respondError(w, http.StatusBadRequest, "invalid status filter", nil)
		return
	}

	items, err := h.store.ListActionItems(r.Context(), filter)
	if err != nil {
		respondStoreError(w, "action items", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"action_items": items,
		"total":        len(items),
	})
}

// UpdateActionItem handles PATCH /api/action-items/{id}.
func (h *ActionItemHandlers) UpdateActionItem(w http.ResponseWriter, r *http.Request) {
	id, ok := extractInt64ID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "valid action item ID is required", nil)
		return
	}

	var patch ActionItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	due, err := parseDate(patch.DueDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid due_date", err)
		return
	}

	update := storage.ActionItemUpdate{
		Status:      patch.Status,
		Notes:       patch.Notes,
		Responsible: patch.Responsible,
	}
	if !due.IsZero() {
		update.DueDate = &due
	}

	item, err := h.store.UpdateActionItem(r.Context(), id, update)
	if err != nil {
		respondStoreError(w, "action item", err)
		return
	}

	respondJSON(w, http.StatusOK, item)
}

// DeleteActionItem handles DELETE /api/action-items/{id}.
func (h *ActionItemHandlers) DeleteActionItem(w http.ResponseWriter, r *http.Request) {
	id, ok := extractInt64ID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "valid action item ID is required", nil)
		return
	}

	if err := h.store.DeleteActionItem(r.Context(), id); err != nil {
		respondStoreError(w, "action item", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

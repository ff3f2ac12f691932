package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ComponentIndex is the resolver surface the registry endpoints need.
// *resolver.Resolver implements it.
type ComponentIndex interface {
	Refresh(ctx context.Context) error
	Collisions() []resolver.Collision
}

// Broadcaster publishes events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(message interface{})
}

// ComponentHandlers serves the component registry endpoints. Every mutation
// refreshes the resolver before responding so the next ingestion sees it.
type ComponentHandlers struct {
	registry storage.ComponentRegistry
	index    ComponentIndex
	events   Broadcaster
}

// NewComponentHandlers creates registry handlers. events may be nil.
func NewComponentHandlers(registry storage.ComponentRegistry, index ComponentIndex, events Broadcaster) *ComponentHandlers {
	return &ComponentHandlers{registry: registry, index: index, events: events}
}

// ListComponents handles GET /api/components.
func (h *ComponentHandlers) ListComponents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ComponentFilter{
		IncludeInactive: q.Get("include_inactive") == "true",
		Subsystem:       q.Get("subsystem"),
	}

	components, err := h.registry.ListComponents(r.Context(), filter)
	if err != nil {
		respondStoreError(w, "components", err)
		return
	}
	if components == nil {
		components = []*types.Component{}
	}

	collisions := h.index.Collisions()
	if collisions == nil {
		collisions = []resolver.Collision{}
	}

	respondJSON(w, http.StatusOK, ComponentListResponse{
		Components: components,
		Collisions: collisions,
	})
}

// GetComponent handles GET /api/components/{id}.
func (h *ComponentHandlers) GetComponent(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "component ID is required", nil)
		return
	}

	c, err := h.registry.GetComponent(r.Context(), id)
	if err != nil {
		respondStoreError(w, "component", err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

// CreateComponent handles POST /api/components.
func (h *ComponentHandlers) CreateComponent(w http.ResponseWriter, r *http.Request) {
	var c types.Component
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	c.ID = ""

	if err := h.registry.CreateComponent(r.Context(), &c); err != nil {
		respondStoreError(w, "component", err)
		return
	}

	h.changed(r.Context(), "created", c.ID)
	respondJSON(w, http.StatusCreated, c)
}

// UpdateComponent handles PUT /api/components/{id}.
func (h *ComponentHandlers) UpdateComponent(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "component ID is required", nil)
		return
	}

	current, err := h.registry.GetComponent(r.Context(), id)
	if err != nil {
		respondStoreError(w, "component", err)
		return
	}

	var c types.Component
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	c.ID = id
	c.CreatedAt = current.CreatedAt

	if err := h.registry.UpdateComponent(r.Context(), &c); err != nil {
		respondStoreError(w, "component", err)
		return
	}

	h.changed(r.Context(), "updated", id)
	respondJSON(w, http.StatusOK, c)
}

// DeleteComponent handles DELETE /api/components/{id}. Events that referenced
// the component keep their raw mention.
func (h *ComponentHandlers) DeleteComponent(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "component ID is required", nil)
		return
	}

	if err := h.registry.DeleteComponent(r.Context(), id); err != nil {
		respondStoreError(w, "component", err)
		return
	}

	h.changed(r.Context(), "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// changed refreshes the resolver and notifies listeners. A failed refresh
// leaves the resolver answering from an empty table, which is logged by the
// resolver itself; the mutation has already been committed.
func (h *ComponentHandlers) changed(ctx context.Context, action, id string) {
	if err := h.index.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("component_id", id).Msg("handlers: resolver refresh failed after registry change")
	}

	if h.events != nil {
		h.events.Broadcast(ComponentsChangedEvent{
			Type:        EventComponentsChanged,
			Action:      action,
			ComponentID: id,
			Timestamp:   time.Now().UTC(),
		})
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage/sqlite"
	"github.com/scrypster/fieldmemo/pkg/types"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (b *recordingBroadcaster) Broadcast(message interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
}

type componentEnv struct {
	store    *sqlite.Store
	resolver *resolver.Resolver
	events   *recordingBroadcaster
	handlers *ComponentHandlers
}

func newComponentEnv(t *testing.T) *componentEnv {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	res := resolver.New(store, resolver.WithLogger(zerolog.Nop()))
	events := &recordingBroadcaster{}
	return &componentEnv{
		store:    store,
		resolver: res,
		events:   events,
		handlers: NewComponentHandlers(store, res, events),
	}
}

func (e *componentEnv) create(t *testing.T, c map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	e.handlers.CreateComponent(rec, httptest.NewRequest(http.MethodPost, "/api/components", bytes.NewReader(data)))
	return rec
}

func TestComponentHandlers_CreateRefreshesResolver(t *testing.T) {
	env := newComponentEnv(t)
	ctx := context.Background()

	// Prime the resolver so a stale table would be observable.
	_, ok := env.resolver.Resolve(ctx, "hp pump")
	require.False(t, ok)

	rec := env.create(t, map[string]interface{}{
		"canonical_name": "High Pressure Pump 3",
		"aliases":        []string{"HP Pump"},
		"active":         true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created types.Component
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"hp pump"}, created.Aliases)

	name, ok := env.resolver.Resolve(ctx, "hp pump")
	assert.True(t, ok, "create must refresh the resolver")
	assert.Equal(t, "High Pressure Pump 3", name)

	require.Len(t, env.events.messages, 1)
	event := env.events.messages[0].(ComponentsChangedEvent)
	assert.Equal(t, EventComponentsChanged, event.Type)
	assert.Equal(t, "created", event.Action)
	assert.Equal(t, created.ID, event.ComponentID)
}

func TestComponentHandlers_CreateValidation(t *testing.T) {
	env := newComponentEnv(t)

	rec := env.create(t, map[string]interface{}{"canonical_name": "  ", "active": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.create(t, map[string]interface{}{"canonical_name": "Gearbox", "active": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.create(t, map[string]interface{}{"canonical_name": "Gearbox", "active": true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Len(t, env.events.messages, 1, "failed mutations broadcast nothing")
}

func TestComponentHandlers_UpdateAndDelete(t *testing.T) {
	env := newComponentEnv(t)
	ctx := context.Background()

	rec := env.create(t, map[string]interface{}{"canonical_name": "Gearbox", "aliases": []string{"gbx"}, "active": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Component
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body, _ := json.Marshal(map[string]interface{}{
		"canonical_name": "Main Gearbox",
		"aliases":        []string{"transmission"},
		"active":         true,
	})
	req := httptest.NewRequest(http.MethodPut, "/api/components/"+created.ID, bytes.NewReader(body))
	req.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	env.handlers.UpdateComponent(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	name, ok := env.resolver.Resolve(ctx, "transmission")
	assert.True(t, ok)
	assert.Equal(t, "Main Gearbox", name)
	_, ok = env.resolver.Resolve(ctx, "gbx")
	assert.False(t, ok, "removed alias must stop resolving")

	req = httptest.NewRequest(http.MethodDelete, "/api/components/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	env.handlers.DeleteComponent(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok = env.resolver.Resolve(ctx, "transmission")
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodDelete, "/api/components/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	env.handlers.DeleteComponent(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Len(t, env.events.messages, 3)
}

func TestComponentHandlers_UpdateUnknown(t *testing.T) {
	env := newComponentEnv(t)

	body, _ := json.Marshal(map[string]interface{}{"canonical_name": "X", "active": true})
	req := httptest.NewRequest(http.MethodPut, "/api/components/nope", bytes.NewReader(body))
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	env.handlers.UpdateComponent(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestComponentHandlers_ListIncludesCollisions(t *testing.T) {
	env := newComponentEnv(t)
	ctx := context.Background()

	require.Equal(t, http.StatusCreated, env.create(t, map[string]interface{}{
		"canonical_name": "Pump A", "aliases": []string{"the pump"}, "active": true,
	}).Code)
	require.Equal(t, http.StatusCreated, env.create(t, map[string]interface{}{
		"canonical_name": "Pump B", "aliases": []string{"the pump"}, "active": true,
	}).Code)
	require.Equal(t, http.StatusCreated, env.create(t, map[string]interface{}{
		"canonical_name": "Old Pump", "active": false,
	}).Code)

	rec := httptest.NewRecorder()
	env.handlers.ListComponents(rec, httptest.NewRequest(http.MethodGet, "/api/components", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ComponentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Components, 2)
	require.Len(t, resp.Collisions, 1)
	assert.Equal(t, "the pump", resp.Collisions[0].Key)
	assert.Equal(t, "Pump B", resp.Collisions[0].Winner)

	name, _ := env.resolver.Resolve(ctx, "the pump")
	assert.Equal(t, "Pump B", name)

	rec = httptest.NewRecorder()
	env.handlers.ListComponents(rec, httptest.NewRequest(http.MethodGet, "/api/components?include_inactive=true", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Components, 3)
}

func TestComponentHandlers_GetComponent(t *testing.T) {
	env := newComponentEnv(t)

	rec := env.create(t, map[string]interface{}{"canonical_name": "Gearbox", "active": true})
	var created types.Component
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/api/components/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	env.handlers.GetComponent(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gearbox")
}

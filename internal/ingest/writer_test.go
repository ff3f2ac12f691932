package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/internal/storage/sqlite"
	"github.com/scrypster/fieldmemo/pkg/types"
)

type testEnv struct {
	store    *sqlite.Store
	resolver *resolver.Resolver
	writer   *Writer
	notifier *recordingNotifier
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []IngestEvent
}

func (n *recordingNotifier) NotifyIngested(e IngestEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pump := &types.Component{CanonicalName: "High Pressure Pump 3", Aliases: []string{"hp pump"}, Active: true}
	require.NoError(t, store.CreateComponent(context.Background(), pump))
	gearbox := &types.Component{CanonicalName: "Gearbox", PartNumber: "GX-200", Active: true}
	require.NoError(t, store.CreateComponent(context.Background(), gearbox))

	res := resolver.New(store, resolver.WithLogger(zerolog.Nop()))
	notifier := &recordingNotifier{}
	w := NewWriter(store, res, WithLogger(zerolog.Nop()), WithNotifier(notifier))

	return &testEnv{store: store, resolver: res, writer: w, notifier: notifier}
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.GetDB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

var allTables = []string{"memo_log", "maintenance_events", "observations", "performance_metrics", "action_items"}

const mixedPayload = `{
  "maintenance_performed": [
    {"component_canonical": "High Pressure Pump 3", "component_raw": "hp pump",
     "activity_performed": "replaced seal", "duration_hours": 1.5, "severity": "Low"},
    {"component_raw": "mystery sensor", "activity_performed": "reseated connector", "severity": "Critical"}
  ],
  "qualitative_observations": [
    {"component_raw": "mystery sensor", "observation": "intermittent signal",
     "observation_type": "anomaly", "severity": "Medium", "follow_up_required": true}
  ],
  "system_performance": [
    {"component_raw": "gx-200", "metric_name": "temperature", "metric_value": "71.5", "metric_unit": "degC"}
  ],
  "action_items": [
    {"action_text": "replace mystery sensor", "component_raw": "mystery sensor"},
    {"action_text": ""},
    {"action_text": "order seals", "component_canonical": "High Pressure Pump 3"}
  ]
}`

func TestIngest_WritesAllCategories(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	date := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

	result, err := env.writer.Ingest(ctx, Request{
		Payload:       extraction.Parse([]byte(mixedPayload)),
		Transcript:    "swapped the seal on the hp pump...",
		SourceLabel:   "memo-0314.m4a",
		Engineer:      "alice",
		EffectiveDate: &date,
	})
	require.NoError(t, err)

	assert.NotZero(t, result.MemoID)
	assert.Equal(t, types.Counts{Maintenance: 2, Observations: 1, Performance: 1, ActionItems: 2}, result.Counts)
	assert.Equal(t, []string{"mystery sensor"}, result.Unmatched)
	assert.Empty(t, result.ParseError)

	detail, err := env.store.GetMemo(ctx, result.MemoID)
	require.NoError(t, err)
	assert.Equal(t, "alice", detail.Engineer)
	assert.Equal(t, "memo-0314.m4a", detail.SourceLabel)
	assert.True(t, detail.LoggedAt.Equal(date))
	assert.Equal(t, types.SeverityCritical, detail.TopSeverity)
	assert.Equal(t, "Recorded: 2 maintenance activities, 1 observation, 1 performance metric, 2 action items.", detail.Summary)

	require.Len(t, detail.Maintenance, 2)
	assert.Equal(t, "High Pressure Pump 3", detail.Maintenance[0].Canonical)
	assert.Empty(t, detail.Maintenance[1].ComponentID)
	assert.Equal(t, "mystery sensor", detail.Maintenance[1].Raw)

	require.Len(t, detail.Performance, 1)
	assert.Equal(t, "Gearbox", detail.Performance[0].Canonical, "resolved through part number")
	require.NotNil(t, detail.Performance[0].Value)
	assert.Equal(t, 71.5, *detail.Performance[0].Value)

	require.Len(t, detail.ActionItems, 2)
	for _, a := range detail.ActionItems {
		assert.Equal(t, "alice", a.Engineer)
		assert.Equal(t, types.ActionNotStarted, a.Status)
	}

	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, EventMemoIngested, env.notifier.events[0].Type)
	assert.Equal(t, result.MemoID, env.notifier.events[0].MemoID)
}

func TestIngest_AtomicOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Fail the last action item insert of the call.
	_, err := env.store.GetDB().Exec(`
		CREATE TRIGGER fail_action_insert BEFORE INSERT ON action_items
		WHEN NEW.action_text = 'order seals'
		BEGIN
			SELECT RAISE(ABORT, 'forced failure');
		END;
	`)
	require.NoError(t, err)

	result, err := env.writer.Ingest(ctx, Request{
		Payload:  extraction.Parse([]byte(mixedPayload)),
		Engineer: "alice",
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrIngestFailed)

	for _, table := range allTables {
		assert.Equal(t, 0, env.count(t, table), "table %s must be empty after rollback", table)
	}
	assert.Empty(t, env.notifier.events, "no notification for a rolled back call")
}

func TestIngest_UnmatchedDedup(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.writer.Ingest(context.Background(), Request{
		Payload: extraction.Parse([]byte(`{
			"maintenance_performed": [{"component_raw": "mystery sensor", "activity_performed": "a"}],
			"qualitative_observations": [{"component_raw": "mystery sensor", "observation": "b"}]
		}`)),
		Engineer: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery sensor"}, result.Unmatched)
}

func TestIngest_BlankActionItemMentionNotReported(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.writer.Ingest(context.Background(), Request{
		Payload: extraction.Parse([]byte(`{
			"action_items": [
				{"action_text": "", "component_raw": "ghost valve"},
				{"action_text": "order seals", "component_raw": "hp pump"}
			]
		}`)),
		Engineer: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.ActionItems)
	assert.Equal(t, []string{}, result.Unmatched)
	assert.Equal(t, 1, env.count(t, "action_items"))
}

func TestIngest_NumericResilience(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.writer.Ingest(ctx, Request{
		Payload: extraction.Parse([]byte(`{
			"maintenance_performed": [{"component_raw": "hp pump", "activity_performed": "flush",
				"duration_hours": "two and a half"}]
		}`)),
		Engineer: "carol",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Maintenance)

	detail, err := env.store.GetMemo(ctx, result.MemoID)
	require.NoError(t, err)
	require.Len(t, detail.Maintenance, 1)
	assert.Nil(t, detail.Maintenance[0].DurationHours)
	assert.Nil(t, detail.DurationHours)
}

func TestIngest_EmptyPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.writer.Ingest(ctx, Request{
		Payload: extraction.Parse([]byte(`{"maintenance_performed": [], "qualitative_observations": [],
			"system_performance": [], "action_items": []}`)),
		Engineer: "dave",
	})
	require.NoError(t, err)
	assert.Equal(t, types.Counts{}, result.Counts)
	assert.Empty(t, result.Unmatched)
	assert.NotNil(t, result.Unmatched)

	assert.Equal(t, 1, env.count(t, "memo_log"))
	for _, table := range allTables[1:] {
		assert.Equal(t, 0, env.count(t, table))
	}

	detail, err := env.store.GetMemo(ctx, result.MemoID)
	require.NoError(t, err)
	assert.Equal(t, NoEventsSynopsis, detail.Summary)
	assert.Equal(t, types.SeverityNone, detail.TopSeverity)
}

func TestIngest_MalformedPayloadStillSavesMemo(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.writer.Ingest(context.Background(), Request{
		Payload:    extraction.Parse([]byte("I could not find any events, sorry.")),
		Transcript: "...",
		Engineer:   "erin",
	})
	require.NoError(t, err)
	assert.Equal(t, "I could not find any events, sorry.", result.ParseError)
	assert.Equal(t, 0, result.Counts.Total())
	assert.Equal(t, 1, env.count(t, "memo_log"))
}

func TestIngest_HallucinatedCanonicalNotLinked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.writer.Ingest(ctx, Request{
		Payload: extraction.Parse([]byte(`{"qualitative_observations": [
			{"component_canonical": "Flux Capacitor", "observation": "glowing"}
		]}`)),
		Engineer: "frank",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Flux Capacitor"}, result.Unmatched)

	detail, err := env.store.GetMemo(ctx, result.MemoID)
	require.NoError(t, err)
	require.Len(t, detail.Observations, 1)
	assert.Empty(t, detail.Observations[0].ComponentID)
	assert.Equal(t, "Flux Capacitor", detail.Observations[0].Raw)
}

func TestIngest_ResolverRefreshAfterRegistryChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := `{"maintenance_performed": [{"component_raw": "genset", "activity_performed": "service"}]}`

	result, err := env.writer.Ingest(ctx, Request{Payload: extraction.Parse([]byte(payload)), Engineer: "gina"})
	require.NoError(t, err)
	assert.Equal(t, []string{"genset"}, result.Unmatched)

	require.NoError(t, env.store.CreateComponent(ctx, &types.Component{
		CanonicalName: "Generator", Aliases: []string{"genset"}, Active: true,
	}))
	require.NoError(t, env.resolver.Refresh(ctx))

	result, err = env.writer.Ingest(ctx, Request{Payload: extraction.Parse([]byte(payload)), Engineer: "gina"})
	require.NoError(t, err)
	assert.Empty(t, result.Unmatched)
}

func TestIngest_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.writer.Ingest(ctx, Request{Payload: extraction.Parse([]byte(`{}`)), Engineer: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.writer.Ingest(ctx, Request{Engineer: "henry"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, env.count(t, "memo_log"))
}

func TestIngest_DefaultsEffectiveDateToNow(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	w := NewWriter(env.store, env.resolver, WithLogger(zerolog.Nop()), WithClock(func() time.Time { return fixed }))

	result, err := w.Ingest(context.Background(), Request{Payload: extraction.Parse([]byte(`{}`)), Engineer: "ivy"})
	require.NoError(t, err)

	detail, err := env.store.GetMemo(context.Background(), result.MemoID)
	require.NoError(t, err)
	assert.True(t, detail.LoggedAt.Equal(fixed))
}

// failingStore always fails the transaction.
type failingStore struct {
	calls int
}

func (s *failingStore) WithTx(_ context.Context, _ func(tx storage.IngestTx) error) error {
	s.calls++
	return errors.New("connection reset by peer")
}

type emptyRegistry struct{}

func (emptyRegistry) ListComponents(context.Context, storage.ComponentFilter) ([]*types.Component, error) {
	return nil, nil
}

func TestIngest_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &failingStore{}
	res := resolver.New(emptyRegistry{}, resolver.WithLogger(zerolog.Nop()))
	w := NewWriter(store, res,
		WithLogger(zerolog.Nop()),
		WithBreaker(BreakerConfig{MaxFailures: 2, Timeout: time.Minute}),
	)
	ctx := context.Background()
	req := func() Request {
		return Request{Payload: extraction.Parse([]byte(`{}`)), Engineer: "jo"}
	}

	for i := 0; i < 2; i++ {
		_, err := w.Ingest(ctx, req())
		assert.ErrorIs(t, err, ErrIngestFailed)
	}
	assert.Equal(t, "open", w.BreakerState())

	_, err := w.Ingest(ctx, req())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 2, store.calls, "open breaker must not reach the store")
}

func TestIngest_RegistryUnavailableStillSaves(t *testing.T) {
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	res := resolver.New(brokenRegistry{}, resolver.WithLogger(zerolog.Nop()))
	w := NewWriter(store, res, WithLogger(zerolog.Nop()))

	result, err := w.Ingest(context.Background(), Request{
		Payload:  extraction.Parse([]byte(mixedPayload)),
		Engineer: "kim",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hp pump", "mystery sensor", "gx-200", "High Pressure Pump 3"}, result.Unmatched)
}

type brokenRegistry struct{}

func (brokenRegistry) ListComponents(context.Context, storage.ComponentFilter) ([]*types.Component, error) {
	return nil, errors.New("registry offline")
}

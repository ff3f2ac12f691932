// Package ingest writes one extraction payload as a memo plus its categorized
// event rows in a single transaction.
//
// Ingestion runs validate, aggregate, commit. Components are resolved before
// the transaction opens, so nothing inside it reads the registry; any insert
// failure rolls back the memo together with every event row.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

var (
	// ErrInvalidRequest indicates the request was rejected before any write.
	ErrInvalidRequest = errors.New("invalid ingest request")

	// ErrIngestFailed indicates the transaction failed and was rolled back.
	// Nothing from the call was persisted; callers retry the whole call.
	ErrIngestFailed = errors.New("ingestion failed")

	// ErrStoreUnavailable indicates the store circuit breaker is open.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Request is one ingestion call.
type Request struct {
	Payload       *extraction.Payload
	Transcript    string
	SourceLabel   string
	Engineer      string
	EffectiveDate *time.Time // Defaults to now
}

// EventMemoIngested is the IngestEvent type sent after a commit.
const EventMemoIngested = "memo_ingested"

// IngestEvent describes a committed ingestion.
type IngestEvent struct {
	Type        string         `json:"type"`
	MemoID      int64          `json:"memo_id"`
	Engineer    string         `json:"engineer"`
	Summary     string         `json:"summary"`
	TopSeverity types.Severity `json:"severity"`
	Counts      types.Counts   `json:"counts"`
	Unmatched   []string       `json:"unmatched"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Notifier is told about every committed ingestion.
type Notifier interface {
	NotifyIngested(event IngestEvent)
}

// Writer performs ingestions.
type Writer struct {
	store     storage.IngestStore
	validator extraction.Validator
	breaker   *storeBreaker
	notifier  Notifier
	logger    zerolog.Logger
	now       func() time.Time

	breakerConfig BreakerConfig
}

// Option configures a Writer.
type Option func(*Writer)

// WithNotifier registers a Notifier for committed ingestions.
func WithNotifier(n Notifier) Option {
	return func(w *Writer) {
		w.notifier = n
	}
}

// WithLogger sets the writer's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithBreaker overrides the store circuit breaker settings.
func WithBreaker(config BreakerConfig) Option {
	return func(w *Writer) {
		w.breakerConfig = config
	}
}

// WithClock overrides the clock used for default effective dates.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a Writer. validator is normally a *resolver.Resolver.
func NewWriter(store storage.IngestStore, validator extraction.Validator, opts ...Option) *Writer {
	w := &Writer{
		store:         store,
		validator:     validator,
		logger:        log.Logger,
		now:           time.Now,
		breakerConfig: DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.breaker = newStoreBreaker(w.breakerConfig, w.logger)
	return w
}

// BreakerState reports the store circuit breaker state.
func (w *Writer) BreakerState() string {
	return w.breaker.state()
}

// plan is a validated, resolved ingestion ready to be written.
type plan struct {
	memo      *types.Memo
	events    []types.Event
	counts    types.Counts
	unmatched []string
}

// Ingest validates req, resolves every component mention and writes the memo
// and its events atomically.
func (w *Writer) Ingest(ctx context.Context, req Request) (*types.IngestResult, error) {
	p, err := w.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	err = w.breaker.execute(ctx, func(ctx context.Context) error {
		return w.store.WithTx(ctx, func(tx storage.IngestTx) error {
			return w.write(ctx, tx, p)
		})
	})
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			w.logger.Warn().Str("engineer", p.memo.Engineer).Msg("ingest: rejected, store circuit breaker open")
			return nil, err
		}
		w.logger.Error().Err(err).Str("engineer", p.memo.Engineer).Msg("ingest: transaction rolled back")
		return nil, fmt.Errorf("%w: %w", ErrIngestFailed, err)
	}

	result := &types.IngestResult{
		MemoID:     p.memo.ID,
		Counts:     p.counts,
		Unmatched:  p.unmatched,
		ParseError: req.Payload.ParseError,
	}

	w.logger.Info().
		Int64("memo_id", result.MemoID).
		Str("engineer", p.memo.Engineer).
		Int("events", result.Counts.Total()).
		Strs("unmatched", result.Unmatched).
		Msg("ingest: memo saved")

	if w.notifier != nil {
		w.notifier.NotifyIngested(IngestEvent{
			Type:        EventMemoIngested,
			MemoID:      result.MemoID,
			Engineer:    p.memo.Engineer,
			Summary:     p.memo.Summary,
			TopSeverity: p.memo.TopSeverity,
			Counts:      result.Counts,
			Unmatched:   result.Unmatched,
			Timestamp:   w.now().UTC(),
		})
	}

	return result, nil
}

// prepare runs the validate and aggregate steps. It reads the registry but
// never writes.
func (w *Writer) prepare(ctx context.Context, req Request) (*plan, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidRequest)
	}
	engineer := strings.TrimSpace(req.Engineer)
	if engineer == "" {
		return nil, fmt.Errorf("%w: engineer is required", ErrInvalidRequest)
	}

	if req.Payload.ParseError != "" {
		w.logger.Warn().
			Str("engineer", engineer).
			Str("parse_error", req.Payload.ParseError).
			Msg("ingest: payload could not be decoded; saving memo without events")
	}

	unmatched := req.Payload.Sanitize(ctx, w.validator)
	if unmatched == nil {
		unmatched = []string{}
	}
	summary := Summarize(req.Payload)

	loggedAt := w.now()
	if req.EffectiveDate != nil && !req.EffectiveDate.IsZero() {
		loggedAt = *req.EffectiveDate
	}

	p := &plan{
		memo: &types.Memo{
			LoggedAt:           loggedAt,
			Engineer:           engineer,
			SourceLabel:        strings.TrimSpace(req.SourceLabel),
			Summary:            summary.Synopsis,
			TopSeverity:        summary.TopSeverity,
			ActivityType:       summary.ActivityType,
			SystemPerformance:  summary.SystemPerformance,
			MaintenanceDone:    summary.MaintenanceDone,
			IssuesFound:        summary.IssuesFound,
			ActionItemsText:    summary.ActionItemsText,
			ComponentsAffected: summary.ComponentsAffected,
			DurationHours:      summary.DurationHours,
			RawTranscript:      req.Transcript,
			RawPayload:         req.Payload.JSON(),
		},
		counts:    summary.Counts,
		unmatched: unmatched,
	}

	for _, e := range req.Payload.Events() {
		if a, ok := e.(*types.ActionItem); ok && a.Blank() {
			continue
		}
		p.events = append(p.events, e)
	}

	return p, nil
}

// write inserts the memo and then every event row inside tx.
func (w *Writer) write(ctx context.Context, tx storage.IngestTx, p *plan) error {
	memoID, err := tx.InsertMemo(ctx, p.memo)
	if err != nil {
		return err
	}

	for _, e := range p.events {
		var componentID *string
		if id := e.Meta().ComponentID; id != "" {
			componentID = &id
		}

		switch ev := e.(type) {
		case *types.Maintenance:
			err = tx.InsertMaintenance(ctx, memoID, componentID, ev)
		case *types.Observation:
			err = tx.InsertObservation(ctx, memoID, componentID, ev)
		case *types.PerformanceMetric:
			err = tx.InsertPerformance(ctx, memoID, componentID, ev)
		case *types.ActionItem:
			err = tx.InsertActionItem(ctx, memoID, p.memo.Engineer, componentID, ev)
		default:
			err = fmt.Errorf("unknown event category %q", e.Category())
		}
		if err != nil {
			return err
		}
	}

	return nil
}

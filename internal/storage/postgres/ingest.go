package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// WithTx runs fn inside a single transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.IngestTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("postgres: rollback after panic failed")
			}
			panic(p)
		}
	}()

	if err := fn(&ingestTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("postgres: rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit transaction: %w", err)
	}
	return nil
}

type ingestTx struct {
	tx *sql.Tx
}

func (t *ingestTx) InsertMemo(ctx context.Context, memo *types.Memo) (int64, error) {
	if memo.LoggedAt.IsZero() {
		memo.LoggedAt = time.Now()
	}
	memo.LoggedAt = memo.LoggedAt.UTC()

	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO memo_log (
			logged_at, engineer, source_file, activity_type,
			summary, system_performance, maintenance_done,
			issues_found, action_items, components_affected,
			duration_hours, severity, additional_notes,
			raw_transcript, raw_insights_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		memo.LoggedAt,
		memo.Engineer,
		nullableString(memo.SourceLabel),
		nullableString(memo.ActivityType),
		memo.Summary,
		nullableString(memo.SystemPerformance),
		nullableString(memo.MaintenanceDone),
		nullableString(memo.IssuesFound),
		nullableString(memo.ActionItemsText),
		nullableString(memo.ComponentsAffected),
		nullableFloat(memo.DurationHours),
		string(memo.TopSeverity),
		nullableString(memo.AdditionalNotes),
		nullableString(memo.RawTranscript),
		nullableJSON(memo.RawPayload),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to insert memo: %w", err)
	}

	memo.ID = id
	return id, nil
}

func (t *ingestTx) InsertMaintenance(ctx context.Context, memoID int64, componentID *string, e *types.Maintenance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO maintenance_events (
			memo_id, component_id, component_raw, activity_performed,
			duration_hours, severity, outcome, time_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		memoID,
		nullableStringPtr(componentID),
		nullableString(e.Raw),
		nullableString(e.Activity),
		nullableFloat(e.DurationHours),
		nullableString(string(e.Severity)),
		nullableString(e.Outcome),
		nullableString(e.TimeReference),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert maintenance event: %w", err)
	}
	return nil
}

func (t *ingestTx) InsertObservation(ctx context.Context, memoID int64, componentID *string, e *types.Observation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO observations (
			memo_id, component_id, component_raw, observation,
			observation_type, severity, follow_up_required, time_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		memoID,
		nullableStringPtr(componentID),
		nullableString(e.Raw),
		nullableString(e.Text),
		nullableString(e.ObservationType),
		nullableString(string(e.Severity)),
		e.FollowUpRequired,
		nullableString(e.TimeReference),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert observation: %w", err)
	}
	return nil
}

func (t *ingestTx) InsertPerformance(ctx context.Context, memoID int64, componentID *string, e *types.PerformanceMetric) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO performance_metrics (
			memo_id, component_id, component_raw, metric_name, metric_value,
			metric_unit, metric_narrative, within_spec, anomaly_flag, time_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		memoID,
		nullableStringPtr(componentID),
		nullableString(e.Raw),
		nullableString(e.MetricName),
		nullableFloat(e.Value),
		nullableString(e.Unit),
		nullableString(e.Narrative),
		nullableBool(e.WithinSpec),
		e.Anomaly,
		nullableString(e.TimeReference),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert performance metric: %w", err)
	}
	return nil
}

func (t *ingestTx) InsertActionItem(ctx context.Context, memoID int64, engineer string, componentID *string, e *types.ActionItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO action_items (
			memo_id, component_id, component_raw, engineer,
			action_text, status, responsible, due_date, time_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		memoID,
		nullableStringPtr(componentID),
		nullableString(e.Raw),
		nullableString(engineer),
		e.Text,
		types.ActionNotStarted,
		nullableString(e.Responsible),
		nullableTime(e.DueDate),
		nullableString(e.TimeReference),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert action item: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

const memoColumns = `id, logged_at, engineer, source_file, activity_type,
	summary, system_performance, maintenance_done, issues_found,
	action_items, components_affected, duration_hours, severity,
	additional_notes, raw_transcript`

// GetMemo returns a memo together with every event derived from it.
func (s *Store) GetMemo(ctx context.Context, id int64) (*types.MemoDetail, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoColumns+" FROM memo_log WHERE id = $1", id)
	memo, err := scanMemo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	detail := &types.MemoDetail{Memo: *memo}

	if detail.Maintenance, err = s.memoMaintenance(ctx, id); err != nil {
		return nil, err
	}
	if detail.Observations, err = s.memoObservations(ctx, id); err != nil {
		return nil, err
	}
	if detail.Performance, err = s.memoPerformance(ctx, id); err != nil {
		return nil, err
	}
	if detail.ActionItems, err = s.queryActionItems(ctx, "a.memo_id = $1", args{id}); err != nil {
		return nil, err
	}

	return detail, nil
}

func (s *Store) memoMaintenance(ctx context.Context, memoID int64) ([]*types.Maintenance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.memo_id, e.component_id, c.canonical_name, e.component_raw,
			e.activity_performed, e.duration_hours, e.severity, e.outcome, e.time_reference
		FROM maintenance_events e
		LEFT JOIN components c ON c.id = e.component_id
		WHERE e.memo_id = $1
		ORDER BY e.id
	`, memoID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query maintenance events: %w", err)
	}
	defer rows.Close()

	events := []*types.Maintenance{}
	for rows.Next() {
		var e types.Maintenance
		var componentID, canonical, raw, activity, severity, outcome, timeRef sql.NullString
		var duration sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.MemoID, &componentID, &canonical, &raw,
			&activity, &duration, &severity, &outcome, &timeRef); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan maintenance event: %w", err)
		}
		e.ComponentID = componentID.String
		e.Canonical = canonical.String
		e.Raw = raw.String
		e.Activity = activity.String
		e.DurationHours = floatPtr(duration)
		e.Severity = types.Severity(severity.String)
		e.Outcome = outcome.String
		e.TimeReference = timeRef.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *Store) memoObservations(ctx context.Context, memoID int64) ([]*types.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.memo_id, e.component_id, c.canonical_name, e.component_raw,
			e.observation, e.observation_type, e.severity, e.follow_up_required, e.time_reference
		FROM observations e
		LEFT JOIN components c ON c.id = e.component_id
		WHERE e.memo_id = $1
		ORDER BY e.id
	`, memoID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query observations: %w", err)
	}
	defer rows.Close()

	events := []*types.Observation{}
	for rows.Next() {
		var e types.Observation
		var componentID, canonical, raw, text, obsType, severity, timeRef sql.NullString
		if err := rows.Scan(&e.ID, &e.MemoID, &componentID, &canonical, &raw,
			&text, &obsType, &severity, &e.FollowUpRequired, &timeRef); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan observation: %w", err)
		}
		e.ComponentID = componentID.String
		e.Canonical = canonical.String
		e.Raw = raw.String
		e.Text = text.String
		e.ObservationType = obsType.String
		e.Severity = types.Severity(severity.String)
		e.TimeReference = timeRef.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *Store) memoPerformance(ctx context.Context, memoID int64) ([]*types.PerformanceMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.memo_id, e.component_id, c.canonical_name, e.component_raw,
			e.metric_name, e.metric_value, e.metric_unit, e.metric_narrative,
			e.within_spec, e.anomaly_flag, e.time_reference
		FROM performance_metrics e
		LEFT JOIN components c ON c.id = e.component_id
		WHERE e.memo_id = $1
		ORDER BY e.id
	`, memoID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query performance metrics: %w", err)
	}
	defer rows.Close()

	events := []*types.PerformanceMetric{}
	for rows.Next() {
		var e types.PerformanceMetric
		var componentID, canonical, raw, name, unit, narrative, timeRef sql.NullString
		var value sql.NullFloat64
		var withinSpec sql.NullBool
		if err := rows.Scan(&e.ID, &e.MemoID, &componentID, &canonical, &raw,
			&name, &value, &unit, &narrative, &withinSpec, &e.Anomaly, &timeRef); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan performance metric: %w", err)
		}
		e.ComponentID = componentID.String
		e.Canonical = canonical.String
		e.Raw = raw.String
		e.MetricName = name.String
		e.Value = floatPtr(value)
		e.Unit = unit.String
		e.Narrative = narrative.String
		e.WithinSpec = boolPtr(withinSpec)
		e.TimeReference = timeRef.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// ListMemos returns memos newest first.
func (s *Store) ListMemos(ctx context.Context, filter storage.MemoFilter) (*storage.PaginatedResult[types.Memo], error) {
	filter.Normalize()

	var conditions []string
	var a args

	if filter.Engineer != "" {
		conditions = append(conditions, "engineer = "+a.add(filter.Engineer))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = "+a.add(filter.Severity))
	}
	if filter.ActivityType != "" {
		conditions = append(conditions, "activity_type = "+a.add(filter.ActivityType))
	}
	if filter.Search != "" {
		p := a.add("%" + filter.Search + "%")
		conditions = append(conditions, "(summary ILIKE "+p+
			" OR issues_found ILIKE "+p+
			" OR maintenance_done ILIKE "+p+
			" OR components_affected ILIKE "+p+
			" OR raw_transcript ILIKE "+p+")")
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "logged_at >= "+a.add(filter.From.UTC()))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "logged_at <= "+a.add(filter.To.UTC()))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memo_log"+where, a...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count memos: %w", err)
	}

	query := "SELECT " + memoColumns + " FROM memo_log" + where +
		" ORDER BY logged_at DESC, id DESC LIMIT " + a.add(filter.Limit) + " OFFSET " + a.add(filter.Offset())
	rows, err := s.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memos: %w", err)
	}
	defer rows.Close()

	items := []types.Memo{}
	for rows.Next() {
		memo, err := scanMemo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *memo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate memos: %w", err)
	}

	return &storage.PaginatedResult[types.Memo]{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.Limit,
		HasMore:  filter.Offset()+len(items) < total,
	}, nil
}

// UpdateMemo edits a memo's summary fields inside one transaction.
func (s *Store) UpdateMemo(ctx context.Context, id int64, update storage.MemoUpdate) (*types.Memo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	memo, err := scanMemo(tx.QueryRowContext(ctx, "SELECT "+memoColumns+" FROM memo_log WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := update.Apply(memo); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memo_log SET
			engineer = $1,
			activity_type = $2,
			summary = $3,
			system_performance = $4,
			maintenance_done = $5,
			issues_found = $6,
			action_items = $7,
			components_affected = $8,
			duration_hours = $9,
			severity = $10,
			additional_notes = $11,
			raw_transcript = $12
		WHERE id = $13
	`,
		memo.Engineer,
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
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to update memo: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: failed to commit memo update: %w", err)
	}
	return memo, nil
}

// DeleteMemo removes a memo; derived rows go with it through ON DELETE CASCADE.
func (s *Store) DeleteMemo(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM memo_log WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete memo: %w", err)
	}
	return requireAffected(result, "memo")
}

// ListEngineers returns the distinct engineers that logged memos.
func (s *Store) ListEngineers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT engineer FROM memo_log ORDER BY engineer")
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list engineers: %w", err)
	}
	defer rows.Close()

	engineers := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan engineer: %w", err)
		}
		engineers = append(engineers, e)
	}
	return engineers, rows.Err()
}

func scanMemo(row rowScanner) (*types.Memo, error) {
	var m types.Memo
	var source, activity, summary, perf, maint, issues, actions, components sql.NullString
	var severity, notes, transcript sql.NullString
	var duration sql.NullFloat64

	err := row.Scan(
		&m.ID, &m.LoggedAt, &m.Engineer, &source, &activity,
		&summary, &perf, &maint, &issues,
		&actions, &components, &duration, &severity,
		&notes, &transcript,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: failed to scan memo: %w", err)
	}

	m.SourceLabel = source.String
	m.ActivityType = activity.String
	m.Summary = summary.String
	m.SystemPerformance = perf.String
	m.MaintenanceDone = maint.String
	m.IssuesFound = issues.String
	m.ActionItemsText = actions.String
	m.ComponentsAffected = components.String
	m.DurationHours = floatPtr(duration)
	m.TopSeverity = types.Severity(severity.String)
	m.AdditionalNotes = notes.String
	m.RawTranscript = transcript.String

	return &m, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ListActionItems returns action items, open work first.
func (s *Store) ListActionItems(ctx context.Context, filter storage.ActionItemFilter) ([]*types.ActionItem, error) {
	var conditions []string
	var a args

	if filter.Engineer != "" {
		conditions = append(conditions, "a.engineer = "+a.add(filter.Engineer))
	}
	if filter.Status != "" {
		conditions = append(conditions, "a.status = "+a.add(filter.Status))
	}
	if filter.Search != "" {
		p := a.add("%" + filter.Search + "%")
		conditions = append(conditions, "(a.action_text ILIKE "+p+" OR a.notes ILIKE "+p+")")
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	return s.queryActionItems(ctx, where, a)
}

// UpdateActionItem changes an item's tracking fields.
func (s *Store) UpdateActionItem(ctx context.Context, id int64, update storage.ActionItemUpdate) (*types.ActionItem, error) {
	if update.Status == "" {
		update.Status = types.ActionNotStarted
	}
	if !types.IsValidActionStatus(update.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", storage.ErrInvalidInput, update.Status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE action_items
		SET status = $1, notes = $2, responsible = $3, due_date = $4, updated_at = NOW()
		WHERE id = $5
	`,
		update.Status,
		nullableString(update.Notes),
		nullableString(update.Responsible),
		nullableTime(update.DueDate),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to update action item: %w", err)
	}
	if err := requireAffected(result, "action item"); err != nil {
		return nil, err
	}

	items, err := s.queryActionItems(ctx, "a.id = $1", args{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, storage.ErrNotFound
	}
	return items[0], nil
}

// DeleteActionItem removes a single action item.
func (s *Store) DeleteActionItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM action_items WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete action item: %w", err)
	}
	return requireAffected(result, "action item")
}

func (s *Store) queryActionItems(ctx context.Context, where string, a args) ([]*types.ActionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.memo_id, a.component_id, c.canonical_name, a.component_raw,
			a.action_text, a.responsible, a.due_date, a.time_reference,
			a.engineer, a.status, a.notes, a.created_at, a.updated_at
		FROM action_items a
		LEFT JOIN components c ON c.id = a.component_id
		WHERE `+where+`
		ORDER BY
			CASE a.status
				WHEN 'In Progress' THEN 1
				WHEN 'Not Started' THEN 2
				WHEN 'Complete' THEN 3
				ELSE 4
			END,
			a.updated_at DESC,
			a.id
	`, a...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query action items: %w", err)
	}
	defer rows.Close()

	items := []*types.ActionItem{}
	for rows.Next() {
		var a types.ActionItem
		var componentID, canonical, raw, responsible, timeRef, engineer, notes sql.NullString
		var due sql.NullTime
		if err := rows.Scan(&a.ID, &a.MemoID, &componentID, &canonical, &raw,
			&a.Text, &responsible, &due, &timeRef,
			&engineer, &a.Status, &notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan action item: %w", err)
		}
		a.ComponentID = componentID.String
		a.Canonical = canonical.String
		a.Raw = raw.String
		a.Responsible = responsible.String
		a.DueDate = timePtr(due)
		a.TimeReference = timeRef.String
		a.Engineer = engineer.String
		a.Notes = notes.String
		items = append(items, &a)
	}
	return items, rows.Err()
}

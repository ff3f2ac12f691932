package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ListActionItems returns action items, open work first.
func (s *Store) ListActionItems(ctx context.Context, filter storage.ActionItemFilter) ([]*types.ActionItem, error) {
	var conditions []string
	var args []interface{}

	if filter.Engineer != "" {
		conditions = append(conditions, "a.engineer = ?")
		args = append(args, filter.Engineer)
	}
	if filter.Status != "" {
		conditions = append(conditions, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, "(LOWER(a.action_text) LIKE ? OR LOWER(COALESCE(a.notes, '')) LIKE ?)")
		args = append(args, like, like)
	}

	where := "1 = 1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	return s.queryActionItems(ctx, where, args)
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
		SET status = ?, notes = ?, responsible = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`,
		update.Status,
		nullableString(update.Notes),
		nullableString(update.Responsible),
		nullableTime(update.DueDate),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to update action item: %w", err)
	}
	if err := requireAffected(result, "action item"); err != nil {
		return nil, err
	}

	items, err := s.queryActionItems(ctx, "a.id = ?", []interface{}{id})
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
	result, err := s.db.ExecContext(ctx, "DELETE FROM action_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete action item: %w", err)
	}
	return requireAffected(result, "action item")
}

func (s *Store) queryActionItems(ctx context.Context, where string, args []interface{}) ([]*types.ActionItem, error) {
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
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query action items: %w", err)
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
			return nil, fmt.Errorf("sqlite: failed to scan action item: %w", err)
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

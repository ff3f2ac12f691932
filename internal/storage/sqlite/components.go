package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

const componentColumns = `id, canonical_name, part_number, category, subsystem,
	aliases, active, notes, created_at, updated_at`

// ListComponents returns components in registry iteration order.
func (s *Store) ListComponents(ctx context.Context, filter storage.ComponentFilter) ([]*types.Component, error) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeInactive {
		conditions = append(conditions, "active = 1")
	}
	if filter.Subsystem != "" {
		conditions = append(conditions, "subsystem = ?")
		args = append(args, filter.Subsystem)
	}

	query := "SELECT " + componentColumns + " FROM components"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list components: %w", err)
	}
	defer rows.Close()

	var components []*types.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate components: %w", err)
	}

	return components, nil
}

// GetComponent retrieves a component by ID.
func (s *Store) GetComponent(ctx context.Context, id string) (*types.Component, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: component ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+componentColumns+" FROM components WHERE id = ?", id)
	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateComponent inserts a component, assigning an ID when none is set.
func (s *Store) CreateComponent(ctx context.Context, c *types.Component) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	aliasesJSON, err := json.Marshal(c.Aliases)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal aliases: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO components (`+componentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.CanonicalName,
		nullableString(c.PartNumber),
		nullableString(c.Category),
		nullableString(c.Subsystem),
		string(aliasesJSON),
		c.Active,
		nullableString(c.Notes),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: component %q already exists", storage.ErrConflict, c.CanonicalName)
		}
		return fmt.Errorf("sqlite: failed to create component: %w", err)
	}

	return nil
}

// UpdateComponent replaces a component's mutable fields.
func (s *Store) UpdateComponent(ctx context.Context, c *types.Component) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: component ID is required", storage.ErrInvalidInput)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	c.UpdatedAt = time.Now().UTC()

	aliasesJSON, err := json.Marshal(c.Aliases)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal aliases: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE components SET
			canonical_name = ?, part_number = ?, category = ?, subsystem = ?,
			aliases = ?, active = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`,
		c.CanonicalName,
		nullableString(c.PartNumber),
		nullableString(c.Category),
		nullableString(c.Subsystem),
		string(aliasesJSON),
		c.Active,
		nullableString(c.Notes),
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: component %q already exists", storage.ErrConflict, c.CanonicalName)
		}
		return fmt.Errorf("sqlite: failed to update component: %w", err)
	}

	return requireAffected(result, "component")
}

// DeleteComponent removes a component. Linked event rows keep their data;
// the foreign key is cleared by ON DELETE SET NULL.
func (s *Store) DeleteComponent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: component ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM components WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete component: %w", err)
	}

	return requireAffected(result, "component")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanComponent(row rowScanner) (*types.Component, error) {
	var c types.Component
	var partNumber, category, subsystem, notes sql.NullString
	var aliasesJSON string

	err := row.Scan(
		&c.ID,
		&c.CanonicalName,
		&partNumber,
		&category,
		&subsystem,
		&aliasesJSON,
		&c.Active,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: failed to scan component: %w", err)
	}

	c.PartNumber = partNumber.String
	c.Category = category.String
	c.Subsystem = subsystem.String
	c.Notes = notes.String

	if aliasesJSON != "" {
		if err := json.Unmarshal([]byte(aliasesJSON), &c.Aliases); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal aliases for %s: %w", c.ID, err)
		}
	}

	return &c, nil
}

// requireAffected converts a zero-row update or delete into ErrNotFound.
func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/fieldmemo/internal/storage"
	"github.com/scrypster/fieldmemo/pkg/types"
)

const componentColumns = `id, canonical_name, part_number, category, subsystem,
	aliases, active, notes, created_at, updated_at`

// ListComponents returns components ordered by creation time, then ID.
func (s *Store) ListComponents(ctx context.Context, filter storage.ComponentFilter) ([]*types.Component, error) {
	var conditions []string
	var a args

	if !filter.IncludeInactive {
		conditions = append(conditions, "active")
	}
	if filter.Subsystem != "" {
		conditions = append(conditions, "subsystem = "+a.add(filter.Subsystem))
	}

	query := "SELECT " + componentColumns + " FROM components"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list components: %w", err)
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
		return nil, fmt.Errorf("postgres: failed to iterate components: %w", err)
	}

	return components, nil
}

// GetComponent retrieves a component by ID.
func (s *Store) GetComponent(ctx context.Context, id string) (*types.Component, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: component ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+componentColumns+" FROM components WHERE id = $1", id)
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

	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO components (`+componentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		c.ID,
		c.CanonicalName,
		nullableString(c.PartNumber),
		nullableString(c.Category),
		nullableString(c.Subsystem),
		pq.Array(aliases),
		c.Active,
		nullableString(c.Notes),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: component %q already exists", storage.ErrConflict, c.CanonicalName)
		}
		return fmt.Errorf("postgres: failed to create component: %w", err)
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

	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE components SET
			canonical_name = $1, part_number = $2, category = $3, subsystem = $4,
			aliases = $5, active = $6, notes = $7, updated_at = $8
		WHERE id = $9
	`,
		c.CanonicalName,
		nullableString(c.PartNumber),
		nullableString(c.Category),
		nullableString(c.Subsystem),
		pq.Array(aliases),
		c.Active,
		nullableString(c.Notes),
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: component %q already exists", storage.ErrConflict, c.CanonicalName)
		}
		return fmt.Errorf("postgres: failed to update component: %w", err)
	}

	return requireAffected(result, "component")
}

// DeleteComponent removes a component; linked event rows lose the link.
func (s *Store) DeleteComponent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: component ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM components WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete component: %w", err)
	}

	return requireAffected(result, "component")
}

func scanComponent(row rowScanner) (*types.Component, error) {
	var c types.Component
	var partNumber, category, subsystem, notes sql.NullString
	var aliases pq.StringArray

	err := row.Scan(
		&c.ID,
		&c.CanonicalName,
		&partNumber,
		&category,
		&subsystem,
		&aliases,
		&c.Active,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: failed to scan component: %w", err)
	}

	c.PartNumber = partNumber.String
	c.Category = category.String
	c.Subsystem = subsystem.String
	c.Notes = notes.String
	if len(aliases) > 0 {
		c.Aliases = []string(aliases)
	}

	return &c, nil
}

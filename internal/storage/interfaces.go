// Package storage provides composable storage interfaces for fieldmemo.
//
// The storage layer is split into small interfaces: the component registry,
// the transactional ingestion path and the memo read path. Backends live in
// the sqlite and postgres subpackages.
package storage

import (
	"context"

	"github.com/scrypster/fieldmemo/pkg/types"
)

// ComponentRegistry is the durable list of canonical components.
type ComponentRegistry interface {
	// ListComponents returns components ordered by creation time, then ID.
	// The order is the iteration order the resolver uses when building its
	// lookup table, so it must be stable.
	ListComponents(ctx context.Context, filter ComponentFilter) ([]*types.Component, error)

	// GetComponent retrieves a component by ID.
	// Returns ErrNotFound if the component doesn't exist.
	GetComponent(ctx context.Context, id string) (*types.Component, error)

	// CreateComponent inserts a component. An empty ID is assigned.
	// Returns ErrConflict if an active component already uses the canonical name.
	CreateComponent(ctx context.Context, c *types.Component) error

	// UpdateComponent replaces a component's fields.
	// Returns ErrNotFound if the component doesn't exist.
	UpdateComponent(ctx context.Context, c *types.Component) error

	// DeleteComponent removes a component. Event rows linked to it keep
	// their data and lose the link.
	DeleteComponent(ctx context.Context, id string) error
}

// IngestStore runs one ingestion inside a single transaction.
type IngestStore interface {
	// WithTx calls fn inside a transaction. If fn returns an error, or the
	// commit fails, every write made through tx is rolled back.
	WithTx(ctx context.Context, fn func(tx IngestTx) error) error
}

// IngestTx is the write surface available inside an ingestion transaction.
// componentID is nil when the event's mention could not be resolved.
type IngestTx interface {
	InsertMemo(ctx context.Context, memo *types.Memo) (int64, error)
	InsertMaintenance(ctx context.Context, memoID int64, componentID *string, e *types.Maintenance) error
	InsertObservation(ctx context.Context, memoID int64, componentID *string, e *types.Observation) error
	InsertPerformance(ctx context.Context, memoID int64, componentID *string, e *types.PerformanceMetric) error
	InsertActionItem(ctx context.Context, memoID int64, engineer string, componentID *string, e *types.ActionItem) error
}

// MemoReader is the read and edit path over ingested memos.
type MemoReader interface {
	// GetMemo returns a memo with all derived events. Linked events carry
	// their component's current canonical name.
	// Returns ErrNotFound if the memo doesn't exist.
	GetMemo(ctx context.Context, id int64) (*types.MemoDetail, error)

	// ListMemos returns memos newest first.
	ListMemos(ctx context.Context, filter MemoFilter) (*PaginatedResult[types.Memo], error)

	// UpdateMemo edits a memo's summary fields and returns the stored memo.
	// Returns ErrNotFound if the memo doesn't exist.
	UpdateMemo(ctx context.Context, id int64, update MemoUpdate) (*types.Memo, error)

	// DeleteMemo removes a memo and, by cascade, every derived row.
	DeleteMemo(ctx context.Context, id int64) error

	// ListEngineers returns the distinct engineers that logged memos.
	ListEngineers(ctx context.Context) ([]string, error)
}

// ActionItemStore tracks action items after ingestion.
type ActionItemStore interface {
	// ListActionItems returns items ordered In Progress, Not Started,
	// Complete, then most recently updated first.
	ListActionItems(ctx context.Context, filter ActionItemFilter) ([]*types.ActionItem, error)

	// UpdateActionItem changes an item's tracking fields.
	// Returns ErrNotFound if the item doesn't exist.
	UpdateActionItem(ctx context.Context, id int64, update ActionItemUpdate) (*types.ActionItem, error)

	// DeleteActionItem removes a single action item.
	// Returns ErrNotFound if the item doesn't exist.
	DeleteActionItem(ctx context.Context, id int64) error
}

// Store is the full backend surface implemented by sqlite and postgres.
type Store interface {
	ComponentRegistry
	IngestStore
	MemoReader
	ActionItemStore

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/fieldmemo/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a uniqueness violation, e.g. a second active
	// component with the same canonical name.
	ErrConflict = errors.New("resource conflict")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ComponentFilter narrows registry listings.
type ComponentFilter struct {
	// IncludeInactive returns retired components as well. The resolver never
	// sets this; administrative listings do.
	IncludeInactive bool

	// Subsystem filters by subsystem. Empty string means no filter.
	Subsystem string
}

// MemoFilter provides pagination and filtering options for memo listings.
type MemoFilter struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 500).
	Limit int

	// Engineer filters by engineer name. Empty string means no filter.
	Engineer string

	// Severity filters by top severity. Empty string means no filter.
	Severity string

	// ActivityType filters by the legacy activity type.
	ActivityType string

	// Search is a case-insensitive substring matched against summary,
	// issues, maintenance, components and raw transcript.
	Search string

	// From and To bound the logged date, inclusive. Zero means unbounded.
	From time.Time
	To   time.Time
}

// Normalize applies defaults to the MemoFilter.
func (f *MemoFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}

	if f.Limit < 1 {
		f.Limit = 50
	}

	if f.Limit > 500 {
		f.Limit = 500 // Matches the legacy listing cap
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (f *MemoFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ActionItemFilter provides filtering options for action item listings.
type ActionItemFilter struct {
	Engineer string
	Status   string
	Search   string // Matched against action text and notes
}

// ActionItemUpdate carries the mutable tracking fields of an action item.
type ActionItemUpdate struct {
	Status      string
	Notes       string
	Responsible string
	DueDate     *time.Time
}

// MemoUpdate carries edits to a memo's summary fields. Nil fields are left
// unchanged; an empty string clears a text field. Derived event rows are
// never touched.
type MemoUpdate struct {
	Engineer           *string
	ActivityType       *string
	Summary            *string
	SystemPerformance  *string
	MaintenanceDone    *string
	IssuesFound        *string
	ActionItemsText    *string
	ComponentsAffected *string
	AdditionalNotes    *string
	RawTranscript      *string
	Severity           *types.Severity

	// DurationHours replaces the duration when set. ClearDuration removes it.
	DurationHours *float64
	ClearDuration bool
}

// Apply validates u and writes its fields onto m.
// Returns ErrInvalidInput for a blank engineer or an unknown severity.
func (u MemoUpdate) Apply(m *types.Memo) error {
	if u.Engineer != nil {
		engineer := strings.TrimSpace(*u.Engineer)
		if engineer == "" {
			return fmt.Errorf("%w: engineer must not be empty", ErrInvalidInput)
		}
		m.Engineer = engineer
	}
	if u.Severity != nil {
		if !u.Severity.IsValid() {
			return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, *u.Severity)
		}
		m.TopSeverity = *u.Severity
	}

	for _, f := range []struct {
		src *string
		dst *string
	}{
		{u.ActivityType, &m.ActivityType},
		{u.Summary, &m.Summary},
		{u.SystemPerformance, &m.SystemPerformance},
		{u.MaintenanceDone, &m.MaintenanceDone},
		{u.IssuesFound, &m.IssuesFound},
		{u.ActionItemsText, &m.ActionItemsText},
		{u.ComponentsAffected, &m.ComponentsAffected},
		{u.AdditionalNotes, &m.AdditionalNotes},
		{u.RawTranscript, &m.RawTranscript},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}

	switch {
	case u.ClearDuration:
		m.DurationHours = nil
	case u.DurationHours != nil:
		d := *u.DurationHours
		m.DurationHours = &d
	}
	return nil
}

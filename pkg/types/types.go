// Package types defines the core data structures for the fieldmemo system.
// These types represent canonical components, the events extracted from a
// spoken field report, and the memo that ties one ingestion together.
package types

import "strings"

// Severity is the engineer-reported seriousness of a maintenance event or
// observation.
type Severity string

// Severity constants, highest first.
const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityNone     Severity = "None"
)

// ValidSeverities is a slice of all recognized severities, highest first.
var ValidSeverities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityNone,
}

// Rank orders severities for aggregation. Unrecognized or empty values rank
// below SeverityNone.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityNone:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether s is one of ValidSeverities.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Category identifies one of the four event lists in an extraction payload.
type Category string

// Event category constants
const (
	CategoryMaintenance Category = "maintenance"
	CategoryObservation Category = "observation"
	CategoryPerformance Category = "performance"
	CategoryActionItem  Category = "action_item"
)

// Categories lists every category in the order events are written.
var Categories = []Category{
	CategoryMaintenance,
	CategoryObservation,
	CategoryPerformance,
	CategoryActionItem,
}

// Maintenance outcome constants
const (
	OutcomeResolved   = "resolved"
	OutcomeMonitoring = "monitoring"
	OutcomeEscalated  = "escalated"
)

// Observation type constants
const (
	ObservationAnomaly       = "anomaly"
	ObservationDegradation   = "degradation"
	ObservationNormal        = "normal"
	ObservationInformational = "informational"
	ObservationConcern       = "concern"
)

// Action item status constants
const (
	ActionNotStarted = "Not Started"
	ActionInProgress = "In Progress"
	ActionComplete   = "Complete"
)

// ValidActionStatuses contains all valid action item status values.
var ValidActionStatuses = []string{
	ActionNotStarted,
	ActionInProgress,
	ActionComplete,
}

// IsValidActionStatus checks if status is a known action item status.
func IsValidActionStatus(status string) bool {
	for _, s := range ValidActionStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Legacy activity types stored on the memo row.
const (
	ActivityRegularMaintenance = "Regular Maintenance"
	ActivityLogistics          = "Logistics"
	ActivityOther              = "Other"
)

// NormalizeSeverity maps free-form casing ("critical", " HIGH ") onto a
// recognized Severity. Unknown input is returned trimmed but otherwise as-is
// so that it still ranks below SeverityNone.
func NormalizeSeverity(s string) Severity {
	trimmed := strings.TrimSpace(s)
	for _, v := range ValidSeverities {
		if strings.EqualFold(trimmed, string(v)) {
			return v
		}
	}
	return Severity(trimmed)
}

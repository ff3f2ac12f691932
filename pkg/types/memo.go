package types

import "time"

// Memo is one ingestion event: one saved transcript and its synthesized
// summary. Every event row written during the ingestion references the memo.
type Memo struct {
	ID          int64     `json:"id"`
	LoggedAt    time.Time `json:"logged_at"`    // Effective date of the report
	Engineer    string    `json:"engineer"`     // Who recorded the memo
	SourceLabel string    `json:"source_label"` // File name or "live recording"

	// Synthesized summary fields kept for the legacy memo_log layout.
	Summary            string   `json:"summary"`
	TopSeverity        Severity `json:"severity"`
	ActivityType       string   `json:"activity_type"`
	SystemPerformance  string   `json:"system_performance,omitempty"`
	MaintenanceDone    string   `json:"maintenance_done,omitempty"`
	IssuesFound        string   `json:"issues_found,omitempty"`
	ActionItemsText    string   `json:"action_items,omitempty"`
	ComponentsAffected string   `json:"components_affected,omitempty"`
	DurationHours      *float64 `json:"duration_hours,omitempty"`
	AdditionalNotes    string   `json:"additional_notes,omitempty"`

	RawTranscript string `json:"raw_transcript,omitempty"`
	RawPayload    []byte `json:"-"` // Extraction payload as received, stored as JSON
}

// MemoDetail is a memo together with every event derived from it.
// Events read back carry RowMeta and, when linked, the canonical name.
type MemoDetail struct {
	Memo
	Maintenance  []*Maintenance       `json:"maintenance"`
	Observations []*Observation       `json:"observations"`
	Performance  []*PerformanceMetric `json:"performance"`
	ActionItems  []*ActionItem        `json:"action_items"`
}

// Counts is the number of rows written per category.
type Counts struct {
	Maintenance  int `json:"maintenance"`
	Observations int `json:"observations"`
	Performance  int `json:"performance"`
	ActionItems  int `json:"action_items"`
}

// Add increments the counter for c.
func (c *Counts) Add(cat Category) {
	switch cat {
	case CategoryMaintenance:
		c.Maintenance++
	case CategoryObservation:
		c.Observations++
	case CategoryPerformance:
		c.Performance++
	case CategoryActionItem:
		c.ActionItems++
	}
}

// Total returns the sum across categories.
func (c Counts) Total() int {
	return c.Maintenance + c.Observations + c.Performance + c.ActionItems
}

// IngestResult is returned by a successful ingestion call.
type IngestResult struct {
	MemoID     int64    `json:"memo_id"`
	Counts     Counts   `json:"counts"`
	Unmatched  []string `json:"unmatched"`             // Deduplicated, first-seen order
	ParseError string   `json:"parse_error,omitempty"` // Set when the payload could not be decoded
}

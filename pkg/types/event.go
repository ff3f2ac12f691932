package types

import (
	"strings"
	"time"
)

// ComponentRef is the component mention carried by every event.
// Raw is the verbatim wording from the transcript; Canonical is the resolved
// registry name, or empty when the mention is not linked.
type ComponentRef struct {
	Raw       string `json:"component_raw,omitempty"`
	Canonical string `json:"component_canonical,omitempty"`
}

// RowMeta is populated when an event is read back from the store.
// ComponentID is also set by payload sanitization once a mention resolves.
type RowMeta struct {
	ID          int64  `json:"id,omitempty"`
	MemoID      int64  `json:"memo_id,omitempty"`
	ComponentID string `json:"component_id,omitempty"` // Empty when the mention was unmatched
}

// Event is one categorized record extracted from a transcript. The set of
// implementations is closed: Maintenance, Observation, PerformanceMetric and
// ActionItem.
type Event interface {
	Category() Category
	Ref() *ComponentRef
	Meta() *RowMeta
	isEvent()
}

// Maintenance is work performed on a component.
type Maintenance struct {
	ComponentRef
	RowMeta
	Activity      string   `json:"activity_performed"`
	DurationHours *float64 `json:"duration_hours"`
	Severity      Severity `json:"severity"`
	Outcome       string   `json:"outcome,omitempty"` // resolved | monitoring | escalated
	TimeReference string   `json:"time_reference,omitempty"`
}

// Observation is a qualitative remark about a component.
type Observation struct {
	ComponentRef
	RowMeta
	Text             string   `json:"observation"`
	ObservationType  string   `json:"observation_type"`
	Severity         Severity `json:"severity"`
	FollowUpRequired bool     `json:"follow_up_required"`
	TimeReference    string   `json:"time_reference,omitempty"`
}

// PerformanceMetric is a reading, numeric or narrative, taken from a component.
type PerformanceMetric struct {
	ComponentRef
	RowMeta
	MetricName    string   `json:"metric_name"`
	Value         *float64 `json:"metric_value"`
	Unit          string   `json:"metric_unit,omitempty"`
	Narrative     string   `json:"metric_narrative,omitempty"` // Used when there is no clean numeric value
	WithinSpec    *bool    `json:"within_spec"`
	Anomaly       bool     `json:"anomaly_flag"`
	TimeReference string   `json:"time_reference,omitempty"`
}

// ActionItem is follow-up work; the component reference is optional.
type ActionItem struct {
	ComponentRef
	RowMeta
	Text          string     `json:"action_text"`
	Responsible   string     `json:"responsible,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	TimeReference string     `json:"time_reference,omitempty"`

	// Tracking fields, set by the store.
	Engineer  string    `json:"engineer,omitempty"`
	Status    string    `json:"status,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Blank reports whether the item has no actionable text. Blank items are
// neither counted nor stored.
func (a *ActionItem) Blank() bool {
	return strings.TrimSpace(a.Text) == ""
}

func (*Maintenance) Category() Category       { return CategoryMaintenance }
func (*Observation) Category() Category       { return CategoryObservation }
func (*PerformanceMetric) Category() Category { return CategoryPerformance }
func (*ActionItem) Category() Category        { return CategoryActionItem }

func (e *Maintenance) Ref() *ComponentRef       { return &e.ComponentRef }
func (e *Observation) Ref() *ComponentRef       { return &e.ComponentRef }
func (e *PerformanceMetric) Ref() *ComponentRef { return &e.ComponentRef }
func (e *ActionItem) Ref() *ComponentRef        { return &e.ComponentRef }

func (e *Maintenance) Meta() *RowMeta       { return &e.RowMeta }
func (e *Observation) Meta() *RowMeta       { return &e.RowMeta }
func (e *PerformanceMetric) Meta() *RowMeta { return &e.RowMeta }
func (e *ActionItem) Meta() *RowMeta        { return &e.RowMeta }

func (*Maintenance) isEvent()       {}
func (*Observation) isEvent()       {}
func (*PerformanceMetric) isEvent() {}
func (*ActionItem) isEvent()        {}

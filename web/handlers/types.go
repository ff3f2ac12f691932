package handlers

import (
	"encoding/json"
	"time"

	"github.com/scrypster/fieldmemo/internal/resolver"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// IngestRequest is the request body for POST /api/memos.
//
// Payload is the extraction output, either as a JSON object or as the raw
// text returned by the extraction step (a JSON string, possibly wrapped in
// markdown fences).
type IngestRequest struct {
	Payload       json.RawMessage `json:"payload"`
	Transcript    string          `json:"transcript"`
	SourceLabel   string          `json:"source_label"`
	Engineer      string          `json:"engineer"`
	EffectiveDate string          `json:"effective_date,omitempty"` // YYYY-MM-DD or RFC3339
}

// MemoEditRequest is the request body for PUT /api/memos/{id}. Omitted fields
// are left unchanged. DurationHours takes a number or text; null, or text
// that is not a number, clears it.
type MemoEditRequest struct {
	Engineer           *string         `json:"engineer"`
	ActivityType       *string         `json:"activity_type"`
	Summary            *string         `json:"summary"`
	SystemPerformance  *string         `json:"system_performance"`
	MaintenanceDone    *string         `json:"maintenance_done"`
	IssuesFound        *string         `json:"issues_found"`
	ActionItems        *string         `json:"action_items"`
	ComponentsAffected *string         `json:"components_affected"`
	DurationHours      json.RawMessage `json:"duration_hours"`
	Severity           *string         `json:"severity"`
	AdditionalNotes    *string         `json:"additional_notes"`
	RawTranscript      *string         `json:"raw_transcript"`
}

// MemoListResponse is the response format for GET /api/memos.
type MemoListResponse struct {
	Memos    []types.Memo `json:"memos"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	HasMore  bool         `json:"has_more"`
}

// ComponentListResponse is the response format for GET /api/components.
type ComponentListResponse struct {
	Components []*types.Component   `json:"components"`
	Collisions []resolver.Collision `json:"collisions"`
}

// ActionItemPatch is the request body for PATCH /api/action-items/{id}.
type ActionItemPatch struct {
	Status      string `json:"status"`
	Notes       string `json:"notes"`
	Responsible string `json:"responsible"`
	DueDate     string `json:"due_date,omitempty"` // YYYY-MM-DD; empty clears it
}

// EventComponentsChanged is broadcast after a registry mutation.
const EventComponentsChanged = "components_changed"

// ComponentsChangedEvent is the WebSocket message sent after the registry
// changes and the resolver has been refreshed.
type ComponentsChangedEvent struct {
	Type        string    `json:"type"`
	Action      string    `json:"action"` // created, updated, deleted
	ComponentID string    `json:"component_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Breaker string `json:"breaker,omitempty"`
	Version string `json:"version"`
}

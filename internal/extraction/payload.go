// Package extraction decodes and sanitizes the structured payload produced by
// the upstream transcript extraction step.
//
// The payload is untrusted: it may be wrapped in markdown fences, may not be
// JSON at all, may omit categories, and may claim canonical component names
// that do not exist. Parse never fails; Sanitize validates every claimed
// component against the resolver before anything reaches the store.
package extraction

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/fieldmemo/pkg/types"
)

// Category keys in the payload object.
const (
	KeyMaintenance  = "maintenance_performed"
	KeyObservations = "qualitative_observations"
	KeyPerformance  = "system_performance"
	KeyActionItems  = "action_items"
)

const (
	// maxParseErrorBytes bounds the input echoed back in ParseError.
	maxParseErrorBytes = 500

	emptyPayloadMarker = "<empty payload>"
)

// Payload is the decoded extraction output: four event lists.
type Payload struct {
	Maintenance  []*types.Maintenance       `json:"maintenance_performed"`
	Observations []*types.Observation       `json:"qualitative_observations"`
	Performance  []*types.PerformanceMetric `json:"system_performance"`
	ActionItems  []*types.ActionItem        `json:"action_items"`

	// ParseError holds the start of the input when it could not be decoded.
	ParseError string `json:"_parse_error,omitempty"`
}

// Empty reports whether the payload has no events at all.
func (p *Payload) Empty() bool {
	return len(p.Maintenance) == 0 && len(p.Observations) == 0 &&
		len(p.Performance) == 0 && len(p.ActionItems) == 0
}

// Events flattens the payload in category order: maintenance, observations,
// performance, action items.
func (p *Payload) Events() []types.Event {
	events := make([]types.Event, 0,
		len(p.Maintenance)+len(p.Observations)+len(p.Performance)+len(p.ActionItems))
	for _, e := range p.Maintenance {
		events = append(events, e)
	}
	for _, e := range p.Observations {
		events = append(events, e)
	}
	for _, e := range p.Performance {
		events = append(events, e)
	}
	for _, e := range p.ActionItems {
		events = append(events, e)
	}
	return events
}

// Parse decodes raw extraction output. It never fails: undecodable input
// yields an empty payload with ParseError set, a missing or non-list category
// is empty, and list entries that are not objects are dropped.
func Parse(raw []byte) *Payload {
	p := &Payload{
		Maintenance:  []*types.Maintenance{},
		Observations: []*types.Observation{},
		Performance:  []*types.PerformanceMetric{},
		ActionItems:  []*types.ActionItem{},
	}

	text := extractJSON(string(raw))

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		p.ParseError = truncate(text, maxParseErrorBytes)
		if p.ParseError == "" {
			p.ParseError = emptyPayloadMarker
		}
		return p
	}

	for _, rec := range records(doc[KeyMaintenance]) {
		p.Maintenance = append(p.Maintenance, decodeMaintenance(rec))
	}
	for _, rec := range records(doc[KeyObservations]) {
		p.Observations = append(p.Observations, decodeObservation(rec))
	}
	for _, rec := range records(doc[KeyPerformance]) {
		p.Performance = append(p.Performance, decodePerformance(rec))
	}
	for _, rec := range records(doc[KeyActionItems]) {
		p.ActionItems = append(p.ActionItems, decodeActionItem(rec))
	}

	return p
}

// JSON returns the normalized payload as stored alongside the memo.
func (p *Payload) JSON() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil
	}
	return bytes.TrimSpace(buf.Bytes())
}

// extractJSON extracts the first JSON object from text that may be wrapped in
// a markdown code block or surrounded by explanation.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No object, let the decoder fail
	}

	// Find the matching closing brace
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text
}

// records returns the object entries of a category list.
func records(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

func decodeRef(rec map[string]any) types.ComponentRef {
	return types.ComponentRef{
		Raw:       types.String(rec["component_raw"]),
		Canonical: types.String(rec["component_canonical"]),
	}
}

func decodeMaintenance(rec map[string]any) *types.Maintenance {
	return &types.Maintenance{
		ComponentRef:  decodeRef(rec),
		Activity:      types.String(rec["activity_performed"]),
		DurationHours: types.ParseFloat(rec["duration_hours"]),
		Severity:      types.NormalizeSeverity(types.String(rec["severity"])),
		Outcome:       strings.ToLower(types.String(rec["outcome"])),
		TimeReference: types.String(rec["time_reference"]),
	}
}

func decodeObservation(rec map[string]any) *types.Observation {
	followUp, _ := types.ParseBool(rec["follow_up_required"])
	return &types.Observation{
		ComponentRef:     decodeRef(rec),
		Text:             types.String(rec["observation"]),
		ObservationType:  strings.ToLower(types.String(rec["observation_type"])),
		Severity:         types.NormalizeSeverity(types.String(rec["severity"])),
		FollowUpRequired: followUp,
		TimeReference:    types.String(rec["time_reference"]),
	}
}

func decodePerformance(rec map[string]any) *types.PerformanceMetric {
	m := &types.PerformanceMetric{
		ComponentRef:  decodeRef(rec),
		MetricName:    types.String(rec["metric_name"]),
		Value:         types.ParseFloat(rec["metric_value"]),
		Unit:          types.String(rec["metric_unit"]),
		Narrative:     types.String(rec["metric_narrative"]),
		TimeReference: types.String(rec["time_reference"]),
	}
	if v, ok := types.ParseBool(rec["within_spec"]); ok {
		m.WithinSpec = &v
	}
	m.Anomaly, _ = types.ParseBool(rec["anomaly_flag"])
	return m
}

func decodeActionItem(rec map[string]any) *types.ActionItem {
	return &types.ActionItem{
		ComponentRef:  decodeRef(rec),
		Text:          types.String(rec["action_text"]),
		Responsible:   types.String(rec["responsible"]),
		DueDate:       types.ParseDate(rec["due_date"]),
		TimeReference: types.String(rec["time_reference"]),
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

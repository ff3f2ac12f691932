package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scrypster/fieldmemo/internal/extraction"
	"github.com/scrypster/fieldmemo/pkg/types"
)

// NoEventsSynopsis is the synopsis of a memo with no structured events.
const NoEventsSynopsis = "No structured events extracted."

// Summary holds the memo fields derived from a payload without touching the
// store.
type Summary struct {
	Synopsis    string
	TopSeverity types.Severity
	Counts      types.Counts // Rows that will be written, per category

	// Legacy memo columns.
	ActivityType       string
	MaintenanceDone    string
	IssuesFound        string
	SystemPerformance  string
	ActionItemsText    string
	ComponentsAffected string
	DurationHours      *float64
}

// Summarize aggregates a sanitized payload. Action items with blank text are
// not counted since they are never written.
func Summarize(p *extraction.Payload) Summary {
	s := Summary{
		Counts: types.Counts{
			Maintenance:  len(p.Maintenance),
			Observations: len(p.Observations),
			Performance:  len(p.Performance),
		},
	}

	var actions []string
	for _, a := range p.ActionItems {
		if !a.Blank() {
			actions = append(actions, a.Text)
		}
	}
	s.Counts.ActionItems = len(actions)

	s.Synopsis = Synopsis(s.Counts)
	s.TopSeverity = TopSeverity(p)
	s.ActivityType = ActivityType(s.Counts)

	var maintenance, issues, performance []string
	var total float64
	for _, m := range p.Maintenance {
		maintenance = append(maintenance, m.Activity)
		if m.DurationHours != nil {
			total += *m.DurationHours
		}
	}
	for _, o := range p.Observations {
		issues = append(issues, o.Text)
	}
	for _, m := range p.Performance {
		if line := performanceLine(m); line != "" {
			performance = append(performance, line)
		}
	}

	s.MaintenanceDone = strings.Join(maintenance, "\n")
	s.IssuesFound = strings.Join(issues, "\n")
	s.SystemPerformance = strings.Join(performance, "\n")
	s.ActionItemsText = strings.Join(actions, "\n")
	s.ComponentsAffected = strings.Join(componentsAffected(p), ", ")
	if total != 0 {
		s.DurationHours = &total
	}

	return s
}

// Synopsis renders per-category counts, omitting empty categories:
// "Recorded: 2 maintenance activities, 1 observation."
func Synopsis(c types.Counts) string {
	var parts []string
	if c.Maintenance > 0 {
		parts = append(parts, plural(c.Maintenance, "maintenance activity", "maintenance activities"))
	}
	if c.Observations > 0 {
		parts = append(parts, plural(c.Observations, "observation", "observations"))
	}
	if c.Performance > 0 {
		parts = append(parts, plural(c.Performance, "performance metric", "performance metrics"))
	}
	if c.ActionItems > 0 {
		parts = append(parts, plural(c.ActionItems, "action item", "action items"))
	}
	if len(parts) == 0 {
		return NoEventsSynopsis
	}
	return "Recorded: " + strings.Join(parts, ", ") + "."
}

// TopSeverity returns the highest-ranked severity across maintenance and
// observation events, or SeverityNone when nothing ranks.
func TopSeverity(p *extraction.Payload) types.Severity {
	top := types.SeverityNone
	rank := 0
	consider := func(s types.Severity) {
		if r := s.Rank(); r > rank {
			top, rank = s, r
		}
	}
	for _, m := range p.Maintenance {
		consider(m.Severity)
	}
	for _, o := range p.Observations {
		consider(o.Severity)
	}
	return top
}

// ActivityType infers the legacy activity type from what was recorded.
func ActivityType(c types.Counts) string {
	switch {
	case c.Maintenance > 0:
		return types.ActivityRegularMaintenance
	case c.Observations > 0:
		return types.ActivityOther
	case c.ActionItems > 0:
		return types.ActivityLogistics
	default:
		return types.ActivityOther
	}
}

func performanceLine(m *types.PerformanceMetric) string {
	if m.Value != nil {
		component := m.Raw
		if component == "" {
			component = m.Canonical
		}
		value := strconv.FormatFloat(*m.Value, 'f', -1, 64)
		return strings.TrimSpace(fmt.Sprintf("%s: %s = %s %s", component, m.MetricName, value, m.Unit))
	}
	return m.Narrative
}

// componentsAffected lists the sorted distinct components named by
// maintenance, observation and performance events, canonical name first.
func componentsAffected(p *extraction.Payload) []string {
	seen := make(map[string]struct{})
	add := func(ref types.ComponentRef) {
		name := ref.Canonical
		if name == "" {
			name = ref.Raw
		}
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	for _, e := range p.Maintenance {
		add(e.ComponentRef)
	}
	for _, e := range p.Observations {
		add(e.ComponentRef)
	}
	for _, e := range p.Performance {
		add(e.ComponentRef)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

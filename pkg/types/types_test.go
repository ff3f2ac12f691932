package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/fieldmemo/pkg/types"
)

func TestSeverityRank(t *testing.T) {
	ordered := types.ValidSeverities
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i-1].Rank(), ordered[i].Rank(), "%s should outrank %s", ordered[i-1], ordered[i])
	}
	assert.Greater(t, types.SeverityNone.Rank(), types.Severity("").Rank())
	assert.Greater(t, types.SeverityNone.Rank(), types.Severity("Catastrophic").Rank())
}

func TestSeverityIsValid(t *testing.T) {
	for _, s := range types.ValidSeverities {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, types.Severity("").IsValid())
	assert.False(t, types.Severity("critical").IsValid(), "case matters once normalized")
}

func TestNormalizeSeverity(t *testing.T) {
	tests := map[string]types.Severity{
		"critical": types.SeverityCritical,
		" HIGH ":   types.SeverityHigh,
		"Medium":   types.SeverityMedium,
		"low":      types.SeverityLow,
		"none":     types.SeverityNone,
		" severe ": types.Severity("severe"),
		"":         types.Severity(""),
	}
	for in, want := range tests {
		assert.Equal(t, want, types.NormalizeSeverity(in), "input %q", in)
	}
}

func TestIsValidActionStatus(t *testing.T) {
	for _, s := range types.ValidActionStatuses {
		assert.True(t, types.IsValidActionStatus(s), s)
	}
	assert.False(t, types.IsValidActionStatus("Done"))
	assert.False(t, types.IsValidActionStatus(""))
}

func TestCounts(t *testing.T) {
	var c types.Counts
	c.Add(types.CategoryMaintenance)
	c.Add(types.CategoryMaintenance)
	c.Add(types.CategoryObservation)
	c.Add(types.CategoryPerformance)
	c.Add(types.CategoryActionItem)
	c.Add(types.Category("unknown"))

	assert.Equal(t, types.Counts{Maintenance: 2, Observations: 1, Performance: 1, ActionItems: 1}, c)
	assert.Equal(t, 5, c.Total())
}

func TestEventCategories(t *testing.T) {
	events := []types.Event{
		&types.Maintenance{},
		&types.Observation{},
		&types.PerformanceMetric{},
		&types.ActionItem{},
	}
	for i, e := range events {
		assert.Equal(t, types.Categories[i], e.Category())
	}
}

func TestEventRefAndMetaAreShared(t *testing.T) {
	m := &types.Maintenance{ComponentRef: types.ComponentRef{Raw: "hp pump"}}
	var e types.Event = m

	e.Ref().Canonical = "High Pressure Pump 3"
	e.Meta().ComponentID = "c-1"

	assert.Equal(t, "High Pressure Pump 3", m.Canonical)
	assert.Equal(t, "c-1", m.ComponentID)
}

func TestActionItemBlank(t *testing.T) {
	assert.True(t, (&types.ActionItem{}).Blank())
	assert.True(t, (&types.ActionItem{Text: "  \t"}).Blank())
	assert.False(t, (&types.ActionItem{Text: "order seal kit"}).Blank())
}

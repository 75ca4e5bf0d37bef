package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueOpen(t *testing.T) {
	require.True(t, Issue{Status: StatusOpen}.Open())
	require.True(t, Issue{Status: StatusPending}.Open())
	require.False(t, Issue{Status: StatusResolved}.Open())
	require.False(t, Issue{Status: StatusExpired}.Open())
}

func TestIssueOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -10)
	future := now.AddDate(0, 0, 10)

	require.True(t, Issue{Status: StatusOpen, DueDate: &past}.Overdue(now))
	require.False(t, Issue{Status: StatusOpen, DueDate: &future}.Overdue(now))
	require.False(t, Issue{Status: StatusOpen}.Overdue(now), "no due date means never overdue")

	// PENDING past its date has remediation submitted; not overdue.
	require.False(t, Issue{Status: StatusPending, DueDate: &past}.Overdue(now))
	require.False(t, Issue{Status: StatusResolved, DueDate: &past}.Overdue(now))
}

func TestSeverityWeightOrdering(t *testing.T) {
	require.Greater(t, SeverityCritical.Weight(), SeverityHigh.Weight())
	require.Greater(t, SeverityHigh.Weight(), SeverityMedium.Weight())
	require.Greater(t, SeverityMedium.Weight(), SeverityLow.Weight())
	require.Greater(t, SeverityLow.Weight(), 0.0)
	require.Zero(t, Severity("BOGUS").Weight())
}

func TestCoreCategories(t *testing.T) {
	cats := CoreCategories()
	require.Equal(t, []Category{CategoryHousing, CategoryPermit, CategorySanitation, CategoryEmissions}, cats)
}

func TestFormattedComplianceCost(t *testing.T) {
	m := Metrics{ComplianceCost: 1234567.5}
	require.Equal(t, "$1,234,567.50", m.FormattedComplianceCost())

	require.Equal(t, "$0.00", Metrics{}.FormattedComplianceCost())
}

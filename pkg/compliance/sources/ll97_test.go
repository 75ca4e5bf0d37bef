package sources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

type fakeLL97Client struct {
	rows []json.RawMessage
	err  error
}

func (c *fakeLL97Client) EmissionsForBBL(ctx context.Context, bbl string) ([]json.RawMessage, error) {
	return c.rows, c.err
}

func TestLL97FetchFilings(t *testing.T) {
	client := &fakeLL97Client{rows: rawRows(t,
		map[string]string{
			"calendar_year":       "2023",
			"total_ghg_emissions": "850.5",
			"ghg_emissions_limit": "900",
		},
		map[string]string{
			"calendar_year":       "2024",
			"total_ghg_emissions": "1100",
			"ghg_emissions_limit": "900",
		},
	)}

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	filings, err := NewLL97Adapter(client).WithClock(fixedClock(now)).FetchFilings(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, filings, 2)
	require.Equal(t, 2024, filings[0].CalendarYear, "most recent year first")

	require.Equal(t, 200.0, filings[0].OverLimit)
	require.Zero(t, filings[1].OverLimit)
	require.True(t, filings[0].Filed)
}

func TestLL97OverLimitBecomesIssueWithPenalty(t *testing.T) {
	client := &fakeLL97Client{rows: rawRows(t, map[string]string{
		"calendar_year":       "2024",
		"total_ghg_emissions": "1100",
		"ghg_emissions_limit": "900",
	})}

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	issues, err := NewLL97Adapter(client).WithClock(fixedClock(now)).FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	require.Equal(t, model.CategoryEmissions, issue.Category)
	require.Equal(t, model.StatusOpen, issue.Status)
	require.Equal(t, 200.0*268.0, issue.PenaltyAmount, "$268 per excess tCO2e")
	require.Equal(t, model.SeverityMedium, issue.Severity, "200/900 is under the 25% band")
}

func TestLL97OverageSeverityBands(t *testing.T) {
	require.Equal(t, model.SeverityCritical, overageSeverity(EmissionsFiling{Limit: 100, OverLimit: 60}))
	require.Equal(t, model.SeverityHigh, overageSeverity(EmissionsFiling{Limit: 100, OverLimit: 30}))
	require.Equal(t, model.SeverityMedium, overageSeverity(EmissionsFiling{Limit: 100, OverLimit: 5}))
	require.Equal(t, model.SeverityMedium, overageSeverity(EmissionsFiling{Limit: 0, OverLimit: 10}))
}

func TestLL97MissingFilingYieldsPendingObligation(t *testing.T) {
	// Only 2023 on record; with the clock in 2025 the 2024 report is missing.
	client := &fakeLL97Client{rows: rawRows(t, map[string]string{
		"calendar_year":       "2023",
		"total_ghg_emissions": "800",
		"ghg_emissions_limit": "900",
	})}

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	issues, err := NewLL97Adapter(client).WithClock(fixedClock(now)).FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	require.Equal(t, model.StatusPending, issue.Status)
	require.Equal(t, model.CategoryEmissions, issue.Category)
	require.Nil(t, issue.DueDate, "the filing deadline is projected from the filing history, not the issue")
}

func TestLL97CompliantBuildingHasNoIssues(t *testing.T) {
	client := &fakeLL97Client{rows: rawRows(t, map[string]string{
		"calendar_year":       "2024",
		"total_ghg_emissions": "700",
		"ghg_emissions_limit": "900",
	})}

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	issues, err := NewLL97Adapter(client).WithClock(fixedClock(now)).FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Empty(t, issues)
}

package sources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

type fakeDOBClient struct {
	rows []json.RawMessage
	err  error
}

func (c *fakeDOBClient) PermitsForBIN(ctx context.Context, bin string) ([]json.RawMessage, error) {
	return c.rows, c.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDOBFetchPermits(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := &fakeDOBClient{rows: rawRows(t,
		map[string]string{
			"job_filing_number":   "M00345-P1",
			"work_type":           "Plumbing",
			"job_status":          "Active",
			"issued_date":         "2025-01-10",
			"expired_date":        "2026-01-10",
			"estimated_job_costs": "250000",
		},
		map[string]string{
			"job_filing_number": "M00346-EL",
			"work_type":         "Electrical",
			"job_status":        "Signed Off",
			"issued_date":       "2023-04-01",
		},
	)}

	adapter := NewDOBAdapter(client).WithClock(fixedClock(now))
	permits, err := adapter.FetchPermits(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, permits, 2)

	require.True(t, permits[0].Active)
	require.Equal(t, "ACTIVE", permits[0].Status)
	require.Equal(t, 250000.0, permits[0].EstimatedCost)
	require.False(t, permits[1].Active, "signed-off work is not an active permit")
}

func TestDOBLapsedPermitBecomesIssue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	client := &fakeDOBClient{rows: rawRows(t,
		map[string]string{ // expired while still active: lapsed
			"job_filing_number":   "M00400-GC",
			"work_type":           "General Construction",
			"job_status":          "Active",
			"issued_date":         "2023-02-01",
			"expired_date":        "2024-02-01",
			"estimated_job_costs": "500000",
		},
		map[string]string{ // active, not yet expired
			"job_filing_number": "M00401-PL",
			"work_type":         "Plumbing",
			"job_status":        "Issued",
			"issued_date":       "2025-05-01",
			"expired_date":      "2026-05-01",
		},
	)}

	adapter := NewDOBAdapter(client).WithClock(fixedClock(now))
	issues, err := adapter.FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	require.Equal(t, model.CategoryPermit, issue.Category)
	require.Equal(t, model.SeverityHigh, issue.Severity, "big jobs lapse at HIGH")
	require.Equal(t, model.StatusOpen, issue.Status)
	require.Equal(t, "M00400-GC", issue.SourceRef.NativeID)
	require.NotNil(t, issue.DueDate)
	require.True(t, issue.Overdue(now))
}

func TestDOBSmallLapsedPermitIsMedium(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	client := &fakeDOBClient{rows: rawRows(t, map[string]string{
		"job_filing_number":   "M00410-OT",
		"job_status":          "Expired",
		"issued_date":         "2024-01-01",
		"estimated_job_costs": "15000",
	})}

	issues, err := NewDOBAdapter(client).WithClock(fixedClock(now)).FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, model.SeverityMedium, issues[0].Severity)
}

func TestDOBIssuesFromPermitsMatchesFetchIssues(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	client := &fakeDOBClient{rows: rawRows(t, map[string]string{
		"job_filing_number": "M00420-GC",
		"job_status":        "Active",
		"issued_date":       "2022-01-01",
		"expired_date":      "2023-01-01",
	})}

	adapter := NewDOBAdapter(client).WithClock(fixedClock(now))
	permits, err := adapter.FetchPermits(context.Background(), testBuilding)
	require.NoError(t, err)

	derived := adapter.IssuesFromPermits(testBuilding.ID, permits)
	fetched, err := adapter.FetchIssues(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Equal(t, fetched, derived)
}

func TestDOBSkipsInvalidRecords(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	client := &fakeDOBClient{rows: rawRows(t,
		map[string]string{"work_type": "Plumbing"}, // missing required fields
		map[string]string{
			"job_filing_number": "M00430-PL",
			"job_status":        "Active",
			"issued_date":       "garbage",
		},
	)}

	permits, err := NewDOBAdapter(client).WithClock(fixedClock(now)).FetchPermits(context.Background(), testBuilding)
	require.NoError(t, err)
	require.Empty(t, permits)
}

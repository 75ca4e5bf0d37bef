package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// Permit is the typed DOB permit record exposed alongside normalized issues.
// Active permits are not violations; they surface in building summaries and
// feed the PERMIT category only when they lapse with open work.
type Permit struct {
	BuildingID     string     `json:"building_id"`
	JobNumber      string     `json:"job_number"`
	WorkType       string     `json:"work_type"`
	Status         string     `json:"status"` // native job status, upper-cased
	IssuedDate     time.Time  `json:"issued_date"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	EstimatedCost  float64    `json:"estimated_cost"`
	Active         bool       `json:"active"`
}

var dobRecordSchema = jsonschema.MustCompileString("dob_permit.json", `{
	"type": "object",
	"required": ["job_filing_number", "job_status", "issued_date"],
	"properties": {
		"job_filing_number": {"type": "string", "minLength": 1},
		"work_type": {"type": "string"},
		"job_status": {"type": "string"},
		"issued_date": {"type": "string"},
		"expired_date": {"type": "string"},
		"estimated_job_costs": {"type": "string"}
	}
}`)

type dobPermit struct {
	JobFilingNumber   string `json:"job_filing_number"`
	WorkType          string `json:"work_type"`
	JobStatus         string `json:"job_status"`
	IssuedDate        string `json:"issued_date"`
	ExpiredDate       string `json:"expired_date"`
	EstimatedJobCosts string `json:"estimated_job_costs"`
}

// DOBAdapter normalizes DOB permit filings. Unlike the other adapters it
// also exposes the raw permit roster via FetchPermits; only lapsed permits
// with open work become compliance issues.
type DOBAdapter struct {
	BaseAdapter
	client DOBClient
	clock  func() time.Time
}

// NewDOBAdapter creates a DOB adapter over the given raw client.
func NewDOBAdapter(client DOBClient) *DOBAdapter {
	return &DOBAdapter{
		BaseAdapter: newBaseAdapter(model.CategoryPermit, "DOB", 5, 10, 15*time.Second),
		client:      client,
		clock:       time.Now,
	}
}

// WithClock overrides the clock for testing.
func (a *DOBAdapter) WithClock(clock func() time.Time) *DOBAdapter {
	a.clock = clock
	return a
}

// FetchPermits retrieves the typed permit roster for a building.
func (a *DOBAdapter) FetchPermits(ctx context.Context, b buildings.Building) ([]Permit, error) {
	cctx, cancel, err := a.acquire(ctx)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	defer cancel()

	rows, err := a.client.PermitsForBIN(cctx, b.BIN)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	a.setHealthy(true)

	now := a.clock()
	permits := make([]Permit, 0, len(rows))
	for _, raw := range rows {
		var rec dobPermit
		if err := decodeRecord(a.source, dobRecordSchema, raw, &rec); err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		p, err := a.mapPermit(b.ID, rec, now)
		if err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		permits = append(permits, p)
	}
	return permits, nil
}

// FetchIssues implements SourceAdapter. A permit contributes an issue only
// when it expired while its work was still open.
func (a *DOBAdapter) FetchIssues(ctx context.Context, b buildings.Building) ([]model.Issue, error) {
	permits, err := a.FetchPermits(ctx, b)
	if err != nil {
		return nil, err
	}
	return a.IssuesFromPermits(b.ID, permits), nil
}

// IssuesFromPermits derives compliance issues from an already-fetched permit
// roster, so callers that need both need not hit the source twice.
func (a *DOBAdapter) IssuesFromPermits(buildingID string, permits []Permit) []model.Issue {
	now := a.clock()
	var issues []model.Issue
	for _, p := range permits {
		if !permitLapsed(p, now) {
			continue
		}
		severity := model.SeverityMedium
		if p.EstimatedCost >= 100_000 {
			severity = model.SeverityHigh
		}
		issues = append(issues, model.Issue{
			ID:          issueID(a.source, p.JobNumber),
			BuildingID:  buildingID,
			Category:    model.CategoryPermit,
			Severity:    severity,
			Status:      model.StatusOpen,
			IssuedDate:  p.IssuedDate,
			DueDate:     p.ExpirationDate,
			Title:       fmt.Sprintf("Expired permit %s", p.JobNumber),
			Description: fmt.Sprintf("%s permit lapsed with work not signed off", p.WorkType),
			SourceRef: model.SourceRef{
				Source:   a.source,
				NativeID: p.JobNumber,
			},
		})
	}
	return issues
}

func (a *DOBAdapter) mapPermit(buildingID string, rec dobPermit, now time.Time) (Permit, error) {
	issued, ok := parseSourceDate(rec.IssuedDate)
	if !ok {
		return Permit{}, &model.SourceDataInvalidError{
			Source: a.source, NativeID: rec.JobFilingNumber, Reason: "unparseable issued_date",
		}
	}

	p := Permit{
		BuildingID: buildingID,
		JobNumber:  rec.JobFilingNumber,
		WorkType:   rec.WorkType,
		Status:     strings.ToUpper(strings.TrimSpace(rec.JobStatus)),
		IssuedDate: issued,
	}
	if t, ok := parseSourceDate(rec.ExpiredDate); ok {
		p.ExpirationDate = &t
	}
	if cost, ok := parseSourceFloat(rec.EstimatedJobCosts); ok {
		p.EstimatedCost = cost
	}
	p.Active = permitOpen(p.Status) && !permitLapsed(p, now)
	return p, nil
}

func permitOpen(status string) bool {
	switch status {
	case "ACTIVE", "IN PROCESS", "ISSUED", "RENEWED":
		return true
	}
	return false
}

func permitLapsed(p Permit, now time.Time) bool {
	if !permitOpen(p.Status) && p.Status != "EXPIRED" {
		return false
	}
	if p.Status == "EXPIRED" {
		return true
	}
	return p.ExpirationDate != nil && p.ExpirationDate.Before(now)
}

package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// LL97 assesses $268 per metric ton of CO2e over the building's limit.
const ll97PenaltyPerTon = 268.0

// LL97 annual reports are due May 1 for the prior calendar year.
const ll97FilingMonth = time.May

// EmissionsFiling is the typed LL97 annual filing exposed to callers and the
// deadline tracker.
type EmissionsFiling struct {
	BuildingID   string  `json:"building_id"`
	CalendarYear int     `json:"calendar_year"`
	TotalGHG     float64 `json:"total_ghg_emissions"` // tCO2e
	Limit        float64 `json:"ghg_emissions_limit"` // tCO2e
	OverLimit    float64 `json:"over_limit"`          // tCO2e over, 0 when compliant
	Filed        bool    `json:"filed"`
}

var ll97RecordSchema = jsonschema.MustCompileString("ll97_filing.json", `{
	"type": "object",
	"required": ["calendar_year", "total_ghg_emissions"],
	"properties": {
		"calendar_year": {"type": "string"},
		"total_ghg_emissions": {"type": "string"},
		"ghg_emissions_limit": {"type": "string"},
		"report_status": {"type": "string"}
	}
}`)

type ll97Filing struct {
	CalendarYear      string `json:"calendar_year"`
	TotalGHGEmissions string `json:"total_ghg_emissions"`
	GHGEmissionsLimit string `json:"ghg_emissions_limit"`
	ReportStatus      string `json:"report_status"`
}

// LL97Adapter normalizes Local Law 97 carbon emissions filings.
type LL97Adapter struct {
	BaseAdapter
	client LL97Client
	clock  func() time.Time
}

// NewLL97Adapter creates an LL97 adapter over the given raw client.
func NewLL97Adapter(client LL97Client) *LL97Adapter {
	return &LL97Adapter{
		BaseAdapter: newBaseAdapter(model.CategoryEmissions, "LL97", 2, 5, 15*time.Second),
		client:      client,
		clock:       time.Now,
	}
}

// WithClock overrides the clock for testing.
func (a *LL97Adapter) WithClock(clock func() time.Time) *LL97Adapter {
	a.clock = clock
	return a
}

// FetchFilings retrieves the typed annual filings for a building, most
// recent year first.
func (a *LL97Adapter) FetchFilings(ctx context.Context, b buildings.Building) ([]EmissionsFiling, error) {
	cctx, cancel, err := a.acquire(ctx)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	defer cancel()

	rows, err := a.client.EmissionsForBBL(cctx, b.BBL)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	a.setHealthy(true)

	filings := make([]EmissionsFiling, 0, len(rows))
	for _, raw := range rows {
		var rec ll97Filing
		if err := decodeRecord(a.source, ll97RecordSchema, raw, &rec); err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		f, err := a.mapFiling(b.ID, rec)
		if err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		filings = append(filings, f)
	}
	sort.Slice(filings, func(i, j int) bool { return filings[i].CalendarYear > filings[j].CalendarYear })
	return filings, nil
}

// FetchIssues implements SourceAdapter. Over-limit filings become EMISSIONS
// issues; a missing filing for the last closed reporting year becomes a
// PENDING filing obligation.
func (a *LL97Adapter) FetchIssues(ctx context.Context, b buildings.Building) ([]model.Issue, error) {
	filings, err := a.FetchFilings(ctx, b)
	if err != nil {
		return nil, err
	}
	return a.IssuesFromFilings(b, filings), nil
}

// IssuesFromFilings derives compliance issues from an already-fetched filing
// history, so callers that need both need not hit the source twice.
func (a *LL97Adapter) IssuesFromFilings(b buildings.Building, filings []EmissionsFiling) []model.Issue {
	var issues []model.Issue
	for _, f := range filings {
		if f.OverLimit <= 0 {
			continue
		}
		nativeID := fmt.Sprintf("%s-%d", b.BBL, f.CalendarYear)
		issued := time.Date(f.CalendarYear+1, ll97FilingMonth, 1, 0, 0, 0, 0, time.UTC)
		issues = append(issues, model.Issue{
			ID:            issueID(a.source, nativeID),
			BuildingID:    b.ID,
			Category:      model.CategoryEmissions,
			Severity:      overageSeverity(f),
			Status:        model.StatusOpen,
			IssuedDate:    issued,
			Title:         fmt.Sprintf("LL97 emissions over limit (%d)", f.CalendarYear),
			Description:   fmt.Sprintf("%.1f tCO2e reported against a %.1f tCO2e limit", f.TotalGHG, f.Limit),
			PenaltyAmount: f.OverLimit * ll97PenaltyPerTon,
			SourceRef: model.SourceRef{
				Source:   a.source,
				NativeID: nativeID,
			},
		})
	}

	// The May 1 deadline itself is projected by the deadline tracker from
	// the filing history; the obligation issue carries no due date so it is
	// counted but never double-projected.
	if missing, year := a.missingFilingYear(filings); missing {
		nativeID := fmt.Sprintf("%s-%d-unfiled", b.BBL, year)
		issues = append(issues, model.Issue{
			ID:          issueID(a.source, nativeID),
			BuildingID:  b.ID,
			Category:    model.CategoryEmissions,
			Severity:    model.SeverityMedium,
			Status:      model.StatusPending,
			IssuedDate:  time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
			Title:       fmt.Sprintf("LL97 annual report not filed (%d)", year),
			Description: fmt.Sprintf("no emissions filing on record for calendar year %d", year),
			SourceRef: model.SourceRef{
				Source:   a.source,
				NativeID: nativeID,
			},
		})
	}
	return issues
}

// missingFilingYear reports whether the last closed reporting year has no
// filing on record.
func (a *LL97Adapter) missingFilingYear(filings []EmissionsFiling) (bool, int) {
	lastClosed := a.clock().Year() - 1
	for _, f := range filings {
		if f.CalendarYear == lastClosed {
			return false, 0
		}
	}
	return true, lastClosed
}

func (a *LL97Adapter) mapFiling(buildingID string, rec ll97Filing) (EmissionsFiling, error) {
	year, ok := parseSourceFloat(rec.CalendarYear)
	if !ok {
		return EmissionsFiling{}, &model.SourceDataInvalidError{
			Source: a.source, Reason: "unparseable calendar_year " + rec.CalendarYear,
		}
	}
	total, ok := parseSourceFloat(rec.TotalGHGEmissions)
	if !ok {
		return EmissionsFiling{}, &model.SourceDataInvalidError{
			Source: a.source, Reason: "unparseable total_ghg_emissions",
		}
	}

	f := EmissionsFiling{
		BuildingID:   buildingID,
		CalendarYear: int(year),
		TotalGHG:     total,
		Filed:        true,
	}
	if limit, ok := parseSourceFloat(rec.GHGEmissionsLimit); ok && limit > 0 {
		f.Limit = limit
		if total > limit {
			f.OverLimit = total - limit
		}
	}
	return f, nil
}

func overageSeverity(f EmissionsFiling) model.Severity {
	if f.Limit <= 0 {
		return model.SeverityMedium
	}
	ratio := f.OverLimit / f.Limit
	switch {
	case ratio >= 0.5:
		return model.SeverityCritical
	case ratio >= 0.25:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}

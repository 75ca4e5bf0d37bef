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

// HPD classes rank hazard, not alphabetical order: class C is "immediately
// hazardous", class B "hazardous", class A "non-hazardous", class I an order
// to correct. Hence C maps to CRITICAL and A to MEDIUM, not the reverse.
var hpdClassSeverity = map[string]model.Severity{
	"C": model.SeverityCritical,
	"I": model.SeverityCritical,
	"B": model.SeverityHigh,
	"A": model.SeverityMedium,
}

var hpdRecordSchema = jsonschema.MustCompileString("hpd_violation.json", `{
	"type": "object",
	"required": ["violationid", "class", "inspectiondate", "violationstatus"],
	"properties": {
		"violationid": {"type": "string", "minLength": 1},
		"class": {"type": "string", "enum": ["A", "B", "C", "I"]},
		"inspectiondate": {"type": "string"},
		"originalcertifybydate": {"type": "string"},
		"certifieddate": {"type": "string"},
		"currentstatusdate": {"type": "string"},
		"violationstatus": {"type": "string"},
		"currentstatus": {"type": "string"},
		"novdescription": {"type": "string"}
	}
}`)

type hpdViolation struct {
	ViolationID           string `json:"violationid"`
	Class                 string `json:"class"`
	InspectionDate        string `json:"inspectiondate"`
	OriginalCertifyByDate string `json:"originalcertifybydate"`
	CertifiedDate         string `json:"certifieddate"`
	CurrentStatusDate     string `json:"currentstatusdate"`
	ViolationStatus       string `json:"violationstatus"` // "Open" | "Close"
	CurrentStatus         string `json:"currentstatus"`
	NOVDescription        string `json:"novdescription"`
}

// HPDAdapter normalizes HPD housing maintenance code violations.
type HPDAdapter struct {
	BaseAdapter
	client HPDClient
}

// NewHPDAdapter creates an HPD adapter over the given raw client.
func NewHPDAdapter(client HPDClient) *HPDAdapter {
	return &HPDAdapter{
		BaseAdapter: newBaseAdapter(model.CategoryHousing, "HPD", 5, 10, 15*time.Second),
		client:      client,
	}
}

// FetchIssues implements SourceAdapter.
func (a *HPDAdapter) FetchIssues(ctx context.Context, b buildings.Building) ([]model.Issue, error) {
	cctx, cancel, err := a.acquire(ctx)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	defer cancel()

	rows, err := a.client.ViolationsForBBL(cctx, b.BBL)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	a.setHealthy(true)

	issues := make([]model.Issue, 0, len(rows))
	for _, raw := range rows {
		var rec hpdViolation
		if err := decodeRecord(a.source, hpdRecordSchema, raw, &rec); err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		issue, err := a.mapViolation(b.ID, rec)
		if err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (a *HPDAdapter) mapViolation(buildingID string, rec hpdViolation) (model.Issue, error) {
	issued, ok := parseSourceDate(rec.InspectionDate)
	if !ok {
		return model.Issue{}, &model.SourceDataInvalidError{
			Source: a.source, NativeID: rec.ViolationID, Reason: "unparseable inspectiondate",
		}
	}

	severity, ok := hpdClassSeverity[rec.Class]
	if !ok {
		return model.Issue{}, &model.SourceDataInvalidError{
			Source: a.source, NativeID: rec.ViolationID, Reason: "unknown class " + rec.Class,
		}
	}

	status := model.StatusOpen
	var resolved *time.Time
	switch {
	case strings.EqualFold(rec.ViolationStatus, "Close"):
		status = model.StatusResolved
		if t, ok := parseSourceDate(rec.CertifiedDate); ok {
			resolved = &t
		} else if t, ok := parseSourceDate(rec.CurrentStatusDate); ok {
			resolved = &t
		}
	case strings.Contains(strings.ToUpper(rec.CurrentStatus), "CERTIF"):
		// Landlord certification submitted, HPD review pending.
		status = model.StatusPending
	}

	var due *time.Time
	if t, ok := parseSourceDate(rec.OriginalCertifyByDate); ok {
		due = &t
	}

	return model.Issue{
		ID:          issueID(a.source, rec.ViolationID),
		BuildingID:  buildingID,
		Category:    model.CategoryHousing,
		Severity:    severity,
		Status:      status,
		IssuedDate:  issued,
		DueDate:     due,
		ResolvedDate: resolved,
		Title:       fmt.Sprintf("Class %s housing violation", rec.Class),
		Description: rec.NOVDescription,
		SourceRef: model.SourceRef{
			Source:   a.source,
			NativeID: rec.ViolationID,
		},
	}, nil
}

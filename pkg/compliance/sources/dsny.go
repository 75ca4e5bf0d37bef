package sources

import (
	"context"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// CollectionSchedule is the typed DSNY schedule exposed to the deadline
// tracker. Days are per waste stream; SetOutHour is the local hour trucks
// begin collection, so "today" still counts before that hour.
type CollectionSchedule struct {
	BuildingID    string         `json:"building_id"`
	District      string         `json:"district"`
	RefuseDays    []time.Weekday `json:"refuse_days"`
	RecyclingDays []time.Weekday `json:"recycling_days"`
	OrganicsDays  []time.Weekday `json:"organics_days"`
	BulkDays      []time.Weekday `json:"bulk_days"`
	SetOutHour    int            `json:"set_out_hour"`
}

// Stream is one waste stream of a collection schedule.
type Stream struct {
	Name string
	Days []time.Weekday
}

// Streams returns the schedule's waste streams in stable order.
func (s CollectionSchedule) Streams() []Stream {
	return []Stream{
		{Name: "refuse", Days: s.RefuseDays},
		{Name: "recycling", Days: s.RecyclingDays},
		{Name: "organics", Days: s.OrganicsDays},
		{Name: "bulk", Days: s.BulkDays},
	}
}

var dsnyScheduleSchema = jsonschema.MustCompileString("dsny_schedule.json", `{
	"type": "object",
	"required": ["district"],
	"properties": {
		"district": {"type": "string", "minLength": 1},
		"refuse_days": {"type": "string"},
		"recycling_days": {"type": "string"},
		"organics_days": {"type": "string"},
		"bulk_days": {"type": "string"}
	}
}`)

var dsnySummonsSchema = jsonschema.MustCompileString("dsny_summons.json", `{
	"type": "object",
	"required": ["summons_number", "violation_date", "charge"],
	"properties": {
		"summons_number": {"type": "string", "minLength": 1},
		"violation_date": {"type": "string"},
		"charge": {"type": "string"},
		"hearing_status": {"type": "string"},
		"balance_due": {"type": "string"},
		"paid_date": {"type": "string"}
	}
}`)

type dsnyScheduleRow struct {
	District      string `json:"district"`
	RefuseDays    string `json:"refuse_days"`
	RecyclingDays string `json:"recycling_days"`
	OrganicsDays  string `json:"organics_days"`
	BulkDays      string `json:"bulk_days"`
}

type dsnySummons struct {
	SummonsNumber string `json:"summons_number"`
	ViolationDate string `json:"violation_date"`
	Charge        string `json:"charge"`
	HearingStatus string `json:"hearing_status"`
	BalanceDue    string `json:"balance_due"`
	PaidDate      string `json:"paid_date"`
}

// DSNYAdapter normalizes sanitation summonses and exposes the collection
// schedule for the building's community district.
type DSNYAdapter struct {
	BaseAdapter
	client     DSNYClient
	setOutHour int
}

// NewDSNYAdapter creates a DSNY adapter over the given raw client.
func NewDSNYAdapter(client DSNYClient) *DSNYAdapter {
	return &DSNYAdapter{
		BaseAdapter: newBaseAdapter(model.CategorySanitation, "DSNY", 2, 5, 15*time.Second),
		client:      client,
		setOutHour:  6, // trucks roll from 06:00 local
	}
}

// FetchSchedule retrieves the collection schedule for the building's
// district. Schedules change rarely; callers cache them on a long TTL.
func (a *DSNYAdapter) FetchSchedule(ctx context.Context, b buildings.Building) (CollectionSchedule, error) {
	cctx, cancel, err := a.acquire(ctx)
	if err != nil {
		a.setHealthy(false)
		return CollectionSchedule{}, model.SourceUnavailable(a.source, err)
	}
	defer cancel()

	rows, err := a.client.CollectionForDistrict(cctx, b.District)
	if err != nil {
		a.setHealthy(false)
		return CollectionSchedule{}, model.SourceUnavailable(a.source, err)
	}
	a.setHealthy(true)

	sched := CollectionSchedule{BuildingID: b.ID, District: b.District, SetOutHour: a.setOutHour}
	for _, raw := range rows {
		var rec dsnyScheduleRow
		if err := decodeRecord(a.source, dsnyScheduleSchema, raw, &rec); err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		if !strings.EqualFold(rec.District, b.District) {
			continue
		}
		sched.RefuseDays = parseCollectionDays(rec.RefuseDays)
		sched.RecyclingDays = parseCollectionDays(rec.RecyclingDays)
		sched.OrganicsDays = parseCollectionDays(rec.OrganicsDays)
		sched.BulkDays = parseCollectionDays(rec.BulkDays)
	}
	return sched, nil
}

// FetchIssues implements SourceAdapter, normalizing sanitation summonses.
func (a *DSNYAdapter) FetchIssues(ctx context.Context, b buildings.Building) ([]model.Issue, error) {
	cctx, cancel, err := a.acquire(ctx)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	defer cancel()

	rows, err := a.client.SummonsesForAddress(cctx, b.Address)
	if err != nil {
		a.setHealthy(false)
		return nil, model.SourceUnavailable(a.source, err)
	}
	a.setHealthy(true)

	issues := make([]model.Issue, 0, len(rows))
	for _, raw := range rows {
		var rec dsnySummons
		if err := decodeRecord(a.source, dsnySummonsSchema, raw, &rec); err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		issue, err := a.mapSummons(b.ID, rec)
		if err != nil {
			a.logger.Warn("skipping record", "building", b.ID, "err", err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (a *DSNYAdapter) mapSummons(buildingID string, rec dsnySummons) (model.Issue, error) {
	issued, ok := parseSourceDate(rec.ViolationDate)
	if !ok {
		return model.Issue{}, &model.SourceDataInvalidError{
			Source: a.source, NativeID: rec.SummonsNumber, Reason: "unparseable violation_date",
		}
	}

	balance, _ := parseSourceFloat(rec.BalanceDue)
	hearing := strings.ToUpper(rec.HearingStatus)

	status := model.StatusOpen
	var resolved *time.Time
	switch {
	case strings.Contains(hearing, "PAID") || (balance == 0 && strings.Contains(hearing, "COMPLETED")):
		status = model.StatusResolved
		if t, ok := parseSourceDate(rec.PaidDate); ok {
			resolved = &t
		}
	case strings.Contains(hearing, "SCHEDULED") || strings.Contains(hearing, "ADJOURN"):
		status = model.StatusPending
	}

	return model.Issue{
		ID:            issueID(a.source, rec.SummonsNumber),
		BuildingID:    buildingID,
		Category:      model.CategorySanitation,
		Severity:      summonsSeverity(rec.Charge),
		Status:        status,
		IssuedDate:    issued,
		ResolvedDate:  resolved,
		Title:         "Sanitation summons " + rec.SummonsNumber,
		Description:   rec.Charge,
		PenaltyAmount: balance,
		SourceRef: model.SourceRef{
			Source:   a.source,
			NativeID: rec.SummonsNumber,
		},
	}, nil
}

func summonsSeverity(charge string) model.Severity {
	c := strings.ToUpper(charge)
	switch {
	case strings.Contains(c, "DUMPING"):
		return model.SeverityHigh
	case strings.Contains(c, "RECYCL") || strings.Contains(c, "RECEPTACLE"):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY": time.Sunday, "SUN": time.Sunday,
	"MONDAY": time.Monday, "MON": time.Monday,
	"TUESDAY": time.Tuesday, "TUE": time.Tuesday, "TUES": time.Tuesday,
	"WEDNESDAY": time.Wednesday, "WED": time.Wednesday,
	"THURSDAY": time.Thursday, "THU": time.Thursday, "THURS": time.Thursday, "TH": time.Thursday,
	"FRIDAY": time.Friday, "FRI": time.Friday,
	"SATURDAY": time.Saturday, "SAT": time.Saturday,
}

// parseCollectionDays accepts the day-list formats the DSNY datasets use:
// "Monday,Thursday", "MON/THU", "M,TH" variants with either separator.
func parseCollectionDays(s string) []time.Weekday {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' || r == ' ' })
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, f := range fields {
		d, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(f))]
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	return days
}

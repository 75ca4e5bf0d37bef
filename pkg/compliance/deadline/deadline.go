// Package deadline projects upcoming and overdue obligations from issue due
// dates and recurring schedules. Everything here is computed at read time:
// DaysRemaining depends on "today" and is never persisted.
package deadline

import (
	"fmt"
	"time"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/sources"
)

// DefaultHorizonDays is the window in which an upcoming deadline counts as
// critical.
const DefaultHorizonDays = 30

// Tracker derives deadlines from issues and recurring schedules.
type Tracker struct {
	horizonDays int
	clock       func() time.Time
}

// New creates a tracker with the given critical-deadline horizon.
func New(horizonDays int) *Tracker {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Tracker{horizonDays: horizonDays, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// FromIssues projects deadlines from issues that carry a due date and are
// not yet resolved. Issues without a due date are excluded here but still
// count toward violation totals elsewhere. Overdue requires OPEN: a PENDING
// item past its date has remediation submitted and is not overdue.
func (t *Tracker) FromIssues(issues []model.Issue) []model.Deadline {
	now := t.clock()
	var out []model.Deadline
	for _, issue := range issues {
		if issue.DueDate == nil || issue.Status == model.StatusResolved || issue.Status == model.StatusExpired {
			continue
		}
		out = append(out, model.Deadline{
			BuildingID:    issue.BuildingID,
			Category:      issue.Category,
			DueDate:       *issue.DueDate,
			Description:   issue.Title,
			DaysRemaining: daysBetween(now, *issue.DueDate),
			Overdue:       issue.Overdue(now),
		})
	}
	return out
}

// FromSchedule projects the next collection for each waste stream of a DSNY
// schedule. The next occurrence is the soonest today-or-later scheduled
// weekday; today still counts if the set-out hour has not passed.
func (t *Tracker) FromSchedule(s sources.CollectionSchedule) []model.Deadline {
	now := t.clock()
	var out []model.Deadline
	for _, stream := range s.Streams() {
		if len(stream.Days) == 0 {
			continue
		}
		next := NextCollection(now, stream.Days, s.SetOutHour)
		out = append(out, model.Deadline{
			BuildingID:    s.BuildingID,
			Category:      model.CategorySanitation,
			DueDate:       next,
			Description:   fmt.Sprintf("%s collection (%s)", stream.Name, next.Weekday()),
			DaysRemaining: daysBetween(now, next),
		})
	}
	return out
}

// FromFilings projects the next LL97 annual report deadline when the last
// closed reporting year is still unfiled.
func (t *Tracker) FromFilings(buildingID string, filings []sources.EmissionsFiling) []model.Deadline {
	now := t.clock()
	lastClosed := now.Year() - 1
	for _, f := range filings {
		if f.CalendarYear == lastClosed && f.Filed {
			return nil
		}
	}
	due := time.Date(lastClosed+1, time.May, 1, 0, 0, 0, 0, now.Location())
	return []model.Deadline{{
		BuildingID:    buildingID,
		Category:      model.CategoryEmissions,
		DueDate:       due,
		Description:   fmt.Sprintf("LL97 annual emissions report for %d", lastClosed),
		DaysRemaining: daysBetween(now, due),
		Overdue:       due.Before(now),
	}}
}

// Critical filters deadlines to those inside the horizon or already overdue.
func (t *Tracker) Critical(deadlines []model.Deadline) []model.Deadline {
	var out []model.Deadline
	for _, d := range deadlines {
		if d.Overdue || (d.DaysRemaining >= 0 && d.DaysRemaining <= t.horizonDays) {
			out = append(out, d)
		}
	}
	return out
}

// NextCollection returns the soonest today-or-later date matching one of the
// scheduled weekdays. If today matches and the set-out hour has not passed,
// today is returned.
func NextCollection(now time.Time, days []time.Weekday, setOutHour int) time.Time {
	scheduled := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		scheduled[d] = true
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), setOutHour, 0, 0, 0, now.Location())
	if scheduled[now.Weekday()] && now.Hour() < setOutHour {
		return day
	}
	for i := 1; i <= 7; i++ {
		day = day.AddDate(0, 0, 1)
		if scheduled[day.Weekday()] {
			return day
		}
	}
	return day
}

// daysBetween counts calendar days from a to b, negative when b is past.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

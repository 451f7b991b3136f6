// Package export renders the canonical schedule model as an iCalendar feed,
// the inverse direction of the JSON ingestion: newer calendar clients can
// subscribe to the same data the legacy board renders.
package export

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "schedbridge/internal/log"
	"schedbridge/internal/model"
)

// ProdID identifies this feed in the generated calendar.
const ProdID = "-//schedbridge//room schedule//EN"

var rruleWeekday = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// Feed converts the model's bookings into a VCALENDAR document. One VEVENT
// per booking: a one-off booking becomes a plain timed event, a weekly
// booking becomes a recurring event with an RRULE over its date range.
// Bookings expressible in neither form are skipped with a diagnostic log,
// mirroring the legacy payload's drop policy.
func Feed(m *model.Model, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProdID)

	for _, b := range m.Bookings {
		if len(b.Rooms) == 0 {
			continue
		}
		if !addEvent(cal, b, loc) {
			appLog.Warn("booking not expressible as calendar event; skipped", "id", b.ID)
		}
	}

	return []byte(cal.Serialize()), nil
}

func addEvent(cal *ical.Calendar, b model.Booking, loc *time.Location) bool {
	// One-off instant range.
	if b.StartDT != "" && b.EndDT != "" {
		start, okS := parseInstant(b.StartDT, loc)
		end, okE := parseInstant(b.EndDT, loc)
		if okS && okE {
			ev := newEvent(cal, b)
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			return true
		}
	}

	// Weekly recurrence over a date range.
	if b.DateFrom != "" && b.DateTo != "" && b.Start != "" && b.End != "" && len(b.ByWeekday) > 0 {
		from, errF := time.ParseInLocation("2006-01-02", b.DateFrom, loc)
		until, errU := time.ParseInLocation("2006-01-02", b.DateTo, loc)
		startClock, okS := parseClock(b.Start)
		endClock, okE := parseClock(b.End)
		if errF != nil || errU != nil || !okS || !okE {
			return false
		}

		days := make([]rrule.Weekday, 0, len(b.ByWeekday))
		for _, wd := range b.ByWeekday {
			if d, ok := rruleWeekday[strings.ToUpper(wd)]; ok {
				days = append(days, d)
			}
		}
		if len(days) == 0 {
			return false
		}

		dtStart := from.Add(startClock)
		r, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: days,
			Dtstart:   dtStart,
			// Recur through the whole final day.
			Until: until.Add(24*time.Hour - time.Second),
		})
		if err != nil {
			return false
		}

		ev := newEvent(cal, b)
		ev.SetStartAt(dtStart)
		ev.SetEndAt(from.Add(endClock))
		ev.AddRrule(r.String())
		return true
	}

	return false
}

func newEvent(cal *ical.Calendar, b model.Booking) *ical.VEvent {
	ev := cal.AddEvent(b.ID + "@schedbridge")
	ev.SetDtStampTime(time.Now().UTC())
	title := b.Title
	if title == "" {
		title = "Room booking"
	}
	ev.SetSummary(title)
	ev.SetLocation(strings.Join(b.Rooms, "+"))
	if b.Status != "" {
		ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(b.Status))
	}
	by := b.ByName
	if b.ByRole != "" {
		by = "[" + b.ByRole + "] " + by
	}
	if strings.TrimSpace(by) != "" {
		ev.SetDescription(by)
	}
	return ev
}

func parseInstant(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "T") {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", v, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseClock converts "13:00" into an offset from midnight.
func parseClock(v string) (time.Duration, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

package schedule

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schedbridge/internal/log"
	"schedbridge/internal/model"
)

// LegacyRow is the strict per-room weekly record the legacy consumer
// expects. All time fields are strings; a single occurrence is represented
// as a one-day-wide weekly pattern.
type LegacyRow struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Status string `json:"status"`
	Title  string `json:"title"`
	ByRole string `json:"by_role,omitempty"`
	ByName string `json:"by_name,omitempty"`

	// Decoration for newer consumers; the legacy renderer ignores
	// underscore-prefixed fields.
	BuildingID string `json:"_building_id,omitempty"`
	MergeLabel string `json:"_merge_label,omitempty"`

	DateFrom  string   `json:"date_from"`
	DateTo    string   `json:"date_to"`
	ByWeekday []string `json:"byweekday"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
}

// weekdayAbbr maps Go weekdays onto the ISO two-letter abbreviations used on
// the wire, via the recurrence library's weekday constants.
var weekdayAbbr = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// validWeekdays is the closed set of wire abbreviations.
var validWeekdays = map[string]struct{}{
	"MO": {}, "TU": {}, "WE": {}, "TH": {}, "FR": {}, "SA": {}, "SU": {},
}

// RecurrenceConverter converts a booking's time specification into the
// strict weekly wire shape. It is deterministic and total on well-formed
// input; only records expressible in neither one-off nor weekly form are
// dropped, silently except for a diagnostic log.
type RecurrenceConverter struct {
	// Location is used to interpret instants that carry no UTC offset.
	// Instants with an explicit offset keep their own local time.
	Location *time.Location
}

// NewRecurrenceConverter returns a converter interpreting offset-less
// instants in loc (time.Local when nil).
func NewRecurrenceConverter(loc *time.Location) *RecurrenceConverter {
	if loc == nil {
		loc = time.Local
	}
	return &RecurrenceConverter{Location: loc}
}

// ToLegacyRow converts one expanded view row. The boolean is false when the
// record is incomplete and must be excluded from the synthesized payload.
//
// Priority order: a parseable one-off instant range wins over weekly fields
// (matching the historical consumer); complete weekly fields pass through
// unchanged; a single date plus clock times becomes a one-day pattern;
// instant strings in start/end are treated like a one-off range; anything
// else is dropped.
func (c *RecurrenceConverter) ToLegacyRow(row model.ViewRow) (LegacyRow, bool) {
	out := LegacyRow{
		ID:         row.ID,
		RoomID:     row.Room,
		Status:     row.Status,
		Title:      row.Title,
		ByRole:     row.ByRole,
		ByName:     row.ByName,
		BuildingID: row.BuildingID,
		MergeLabel: row.Label,
	}

	// Case 1: one-off instant range.
	if row.StartDT != "" && row.EndDT != "" {
		start, okS := c.parseInstant(row.StartDT)
		end, okE := c.parseInstant(row.EndDT)
		if okS && okE {
			fillOneDay(&out, start, end)
			return out, true
		}
	}

	// Case 2: complete weekly fields pass through with string coercion.
	if row.DateFrom != "" && row.DateTo != "" && row.Start != "" && row.End != "" {
		if wds := normalizeWeekdays(row.ByWeekday); len(wds) > 0 {
			out.DateFrom = row.DateFrom
			out.DateTo = row.DateTo
			out.ByWeekday = wds
			out.Start = row.Start
			out.End = row.End
			return out, true
		}
	}

	// Case 3: single calendar date plus clock times; weekday derived from
	// the date.
	if row.Date != "" && isClock(row.Start) && isClock(row.End) {
		if day, err := time.ParseInLocation("2006-01-02", row.Date, c.Location); err == nil {
			out.DateFrom = row.Date
			out.DateTo = row.Date
			out.ByWeekday = []string{weekdayAbbr[day.Weekday()].String()}
			out.Start = row.Start
			out.End = row.End
			return out, true
		}
	}

	// Case 4: instant strings in start/end without any weekly fields.
	if row.Start != "" && row.End != "" && strings.Contains(row.Start, "T") {
		start, okS := c.parseInstant(row.Start)
		end, okE := c.parseInstant(row.End)
		if okS && okE {
			fillOneDay(&out, start, end)
			return out, true
		}
	}

	// Case 5: incomplete; excluded from the synthesized payload.
	appLog.Warn("booking not expressible in legacy shape; skipped",
		"id", row.ID, "room", row.Room)
	return LegacyRow{}, false
}

// BuildLegacyRows converts every view row, applying the incomplete-record
// drops.
func (c *RecurrenceConverter) BuildLegacyRows(rows []model.ViewRow) []LegacyRow {
	out := make([]LegacyRow, 0, len(rows))
	for _, row := range rows {
		if lr, ok := c.ToLegacyRow(row); ok {
			out = append(out, lr)
		}
	}
	return out
}

// fillOneDay writes a one-day-wide weekly pattern from an instant range:
// both dates are the start instant's local calendar date, the weekday set is
// the start's weekday, and start/end are zero-padded local clock times.
func fillOneDay(out *LegacyRow, start, end time.Time) {
	out.DateFrom = start.Format("2006-01-02")
	out.DateTo = out.DateFrom
	out.ByWeekday = []string{weekdayAbbr[start.Weekday()].String()}
	out.Start = start.Format("15:04")
	out.End = end.Format("15:04")
}

// parseInstant accepts the instant layouts seen in the wild: RFC 3339 with
// offset, and offset-less date-times interpreted in the converter's
// location.
func (c *RecurrenceConverter) parseInstant(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" || !strings.Contains(v, "T") {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, v, c.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeWeekdays upper-cases and filters a raw weekday list down to the
// seven wire abbreviations, deduplicated, preserving order.
func normalizeWeekdays(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, wd := range raw {
		u := strings.ToUpper(strings.TrimSpace(wd))
		if _, ok := validWeekdays[u]; !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// isClock reports whether v looks like a date-independent clock time
// ("13:00") rather than an instant.
func isClock(v string) bool {
	return v != "" && !strings.Contains(v, "T") && strings.Contains(v, ":")
}

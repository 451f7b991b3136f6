package schedule

import (
	"strings"

	"schedbridge/internal/model"
)

// ExpandRows turns canonical bookings into one view row per (booking, room)
// pair. A booking occupying N rooms yields exactly N rows in the same room
// order, all sharing one group id; bookings whose room set is empty yield
// zero rows. Row order across bookings follows the booking order.
//
// This is a pure function: it never mutates the bookings and is re-run on
// every load or filter pass.
func ExpandRows(bookings []model.Booking) []model.ViewRow {
	out := make([]model.ViewRow, 0, len(bookings))
	for _, b := range bookings {
		if len(b.Rooms) == 0 {
			continue
		}
		labels := make([]string, len(b.Rooms))
		for i, r := range b.Rooms {
			labels[i] = model.RoomLabel(r)
		}
		label := strings.Join(labels, "+")
		gid := b.ID + "::" + label
		for _, r := range b.Rooms {
			out = append(out, model.ViewRow{
				Booking: b,
				Room:    r,
				Label:   label,
				GroupID: gid,
			})
		}
	}
	return out
}

// FilterOptions selects a subset of view rows. An empty or "all" selector
// applies no filter for that dimension; matching is exact.
type FilterOptions struct {
	Building string
	Room     string
	Status   string
}

// FilterRows returns the rows matching opts, preserving order. Filtering
// never mutates row or booking state.
func FilterRows(rows []model.ViewRow, opts FilterOptions) []model.ViewRow {
	out := make([]model.ViewRow, 0, len(rows))
	for _, r := range rows {
		if !selectorMatch(opts.Building, r.BuildingID) {
			continue
		}
		if !selectorMatch(opts.Room, r.Room) {
			continue
		}
		if !selectorMatch(opts.Status, r.Status) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func selectorMatch(sel, value string) bool {
	return sel == "" || sel == "all" || sel == value
}

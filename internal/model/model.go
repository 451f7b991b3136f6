package model

import "strings"

// Schema identifies which wire shape a schedule document was decoded from.
// The normalizer detects the shape once and records it here; downstream code
// never needs to re-inspect the raw document.
type Schema string

const (
	// SchemaLegacy is the old single-building document:
	// { rooms: [...], bookings: [{room_id, ...}] }
	SchemaLegacy Schema = "legacy"
	// SchemaCurrent is the multi-building document:
	// { buildings: [...], combinables: [...], bookings: [{rooms, ...}] }
	SchemaCurrent Schema = "current"
)

// Building owns an ordered list of canonical room ids. A room belongs to
// exactly one building.
type Building struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Rooms []string `json:"rooms"`
}

// CombinableGroup names a set of rooms that may be jointly reserved as a
// unit. The core carries these through untouched; only the UI interprets
// them.
type CombinableGroup struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Rooms []string `json:"rooms,omitempty"`
}

// Booking is one normalized reservation. Time fields are kept as the raw
// strings the document carried; any subset may be set, and the recurrence
// converter decides later which combination is expressible in the legacy
// shape. Rooms is never empty once a booking reaches the expander — bookings
// that resolve to zero rooms are dropped before that point.
type Booking struct {
	ID         string   `json:"id"`
	BuildingID string   `json:"building_id"`
	Rooms      []string `json:"rooms"`
	Status     string   `json:"status"`
	Title      string   `json:"title,omitempty"`
	ByRole     string   `json:"by_role,omitempty"`
	ByName     string   `json:"by_name,omitempty"`

	// One-off instant range (ISO 8601 date-times).
	StartDT string `json:"start_dt,omitempty"`
	EndDT   string `json:"end_dt,omitempty"`

	// Weekly recurrence fields.
	DateFrom  string   `json:"date_from,omitempty"`
	DateTo    string   `json:"date_to,omitempty"`
	ByWeekday []string `json:"byweekday,omitempty"`

	// Date is the rare single-calendar-date legacy variant.
	Date string `json:"date,omitempty"`

	// Start/End are clock times ("13:00") for weekly bookings, or full
	// instant strings in some legacy documents.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// Extra preserves unrecognized document fields without
	// reinterpretation.
	Extra map[string]any `json:"-"`
}

// ViewRow is the per-(booking, room) display record. Rows are derived on
// every pass and never persisted; filtering selects from them without
// mutating the underlying bookings.
type ViewRow struct {
	Booking
	// Room is the single canonical room id this row is bound to.
	Room string `json:"room"`
	// Label is the display label: room labels joined with "+".
	Label string `json:"label"`
	// GroupID is shared by all rows expanded from one booking.
	GroupID string `json:"group_id"`
}

// Model is the unified in-memory representation rebuilt from scratch on
// every load.
type Model struct {
	Schema      Schema            `json:"schema"`
	Version     int               `json:"version,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
	Buildings   []Building        `json:"buildings"`
	Combinables []CombinableGroup `json:"combinables"`
	Bookings    []Booking         `json:"bookings"`
}

// RoomLabel returns the display suffix of a canonical room id: everything
// after the first "-", or the id itself when it carries no building prefix.
func RoomLabel(roomID string) string {
	if i := strings.Index(roomID, "-"); i >= 0 {
		return roomID[i+1:]
	}
	return roomID
}

// Building returns the building with the given id, or nil.
func (m *Model) Building(id string) *Building {
	for i := range m.Buildings {
		if m.Buildings[i].ID == id {
			return &m.Buildings[i]
		}
	}
	return nil
}

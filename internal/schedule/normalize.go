package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	appLog "schedbridge/internal/log"
	"schedbridge/internal/model"
)

// Normalizer bridges the two schedule document shapes (legacy
// single-building and current multi-building) into one canonical Model.
// Malformed individual records never fail a pass; missing fields are filled
// from the defaulting table below and record exclusion is deferred to the
// expander.
type Normalizer struct {
	// DefaultBuildingID/Name and DefaultRooms describe the building
	// synthesized for documents that predate multi-building support.
	DefaultBuildingID   string
	DefaultBuildingName string
	DefaultRooms        []string
}

// NewNormalizer returns a Normalizer with the original deployment's
// defaults.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		DefaultBuildingID:   "GF",
		DefaultBuildingName: "Gedung Fisika",
		DefaultRooms: []string{
			"1201", "1202", "1203", "1204", "1205", "Ruang Staf Lama", "Ruang Staf Baru",
		},
	}
}

// bookingFieldDefaults is the single defaulting table for optional booking
// string fields: document key, fallback value, and where the value lands on
// the canonical Booking. Keys listed here (plus the specially-handled ones
// in normalizeBooking) are the recognized set; everything else is preserved
// in Booking.Extra.
var bookingFieldDefaults = []struct {
	key      string
	fallback string
	assign   func(*model.Booking, string)
}{
	{"title", "", func(b *model.Booking, v string) { b.Title = v }},
	{"by_role", "", func(b *model.Booking, v string) { b.ByRole = v }},
	{"by_name", "", func(b *model.Booking, v string) { b.ByName = v }},
	{"start_dt", "", func(b *model.Booking, v string) { b.StartDT = v }},
	{"end_dt", "", func(b *model.Booking, v string) { b.EndDT = v }},
	{"date_from", "", func(b *model.Booking, v string) { b.DateFrom = v }},
	{"date_to", "", func(b *model.Booking, v string) { b.DateTo = v }},
	{"date", "", func(b *model.Booking, v string) { b.Date = v }},
	{"start", "", func(b *model.Booking, v string) { b.Start = v }},
	{"end", "", func(b *model.Booking, v string) { b.End = v }},
}

// specialBookingKeys are document keys consumed outside the defaulting
// table.
var specialBookingKeys = map[string]struct{}{
	"id":          {},
	"rooms":       {},
	"room_id":     {},
	"building_id": {},
	"status":      {},
	"byweekday":   {},
	"pic_name":    {},
}

// Normalize decodes a schedule document of unknown shape and produces the
// canonical Model. The document's schema variant is detected once and
// recorded as an explicit discriminant on the Model.
func (n *Normalizer) Normalize(raw []byte) (*model.Model, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Some deployments ship a bare booking array instead of an
		// object envelope.
		var arr []any
		if arrErr := json.Unmarshal(raw, &arr); arrErr != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		doc = map[string]any{"bookings": arr}
	}

	m := &model.Model{
		Version:   intOf(doc["version"]),
		UpdatedAt: stringOf(doc["updated_at"]),
	}

	rawBuildings := sliceOf(doc["buildings"])
	if len(rawBuildings) > 0 {
		m.Schema = model.SchemaCurrent
	} else {
		m.Schema = model.SchemaLegacy
	}

	resolver := n.buildings(m, rawBuildings, sliceOf(doc["rooms"]))
	m.Combinables = n.combinables(sliceOf(doc["combinables"]))
	n.bookings(m, resolver, sliceOf(doc["bookings"]))

	appLog.Info("schedule normalized",
		"schema", string(m.Schema),
		"buildings", len(m.Buildings),
		"combinables", len(m.Combinables),
		"bookings", len(m.Bookings),
	)
	return m, nil
}

// buildings fills m.Buildings from the current-shape list, or synthesizes
// the default building from the legacy flat rooms field (falling back to the
// hard-coded room list). Returns the Resolver seeded with every building id
// seen.
func (n *Normalizer) buildings(m *model.Model, rawBuildings, legacyRooms []any) *Resolver {
	if len(rawBuildings) == 0 {
		resolver := NewResolver([]string{n.DefaultBuildingID})
		labels := n.DefaultRooms
		if len(legacyRooms) > 0 {
			labels = make([]string, 0, len(legacyRooms))
			for _, r := range legacyRooms {
				if label := roomLabelOf(r); label != "" {
					labels = append(labels, label)
				}
			}
		}
		rooms := make([]string, 0, len(labels))
		for _, label := range labels {
			rooms = append(rooms, resolver.Resolve(label, n.DefaultBuildingID))
		}
		m.Buildings = []model.Building{{
			ID:    n.DefaultBuildingID,
			Name:  n.DefaultBuildingName,
			Rooms: rooms,
		}}
		return resolver
	}

	// Collect ids first so cross-building room prefixes resolve.
	resolver := NewResolver(nil)
	for _, rb := range rawBuildings {
		if obj, ok := rb.(map[string]any); ok {
			resolver.AddBuilding(stringOf(obj["id"]))
		}
	}

	m.Buildings = make([]model.Building, 0, len(rawBuildings))
	for _, rb := range rawBuildings {
		obj, ok := rb.(map[string]any)
		if !ok {
			continue
		}
		id := stringOf(obj["id"])
		if id == "" {
			id = n.DefaultBuildingID
		}
		name := stringOf(obj["name"])
		if name == "" {
			name = id
		}
		rawRooms := sliceOf(obj["rooms"])
		rooms := make([]string, 0, len(rawRooms))
		for _, r := range rawRooms {
			if label := roomLabelOf(r); label != "" {
				rooms = append(rooms, resolver.Resolve(label, id))
			}
		}
		m.Buildings = append(m.Buildings, model.Building{ID: id, Name: name, Rooms: rooms})
	}
	return resolver
}

// combinables passes the combinable groups through with liberal decoding;
// the core does not interpret them.
func (n *Normalizer) combinables(raw []any) []model.CombinableGroup {
	out := make([]model.CombinableGroup, 0, len(raw))
	for _, rc := range raw {
		obj, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		g := model.CombinableGroup{
			ID:   stringOf(obj["id"]),
			Name: stringOf(obj["name"]),
		}
		for _, r := range sliceOf(obj["rooms"]) {
			if s := stringOf(r); s != "" {
				g.Rooms = append(g.Rooms, s)
			}
		}
		out = append(out, g)
	}
	return out
}

// bookings normalizes every raw booking record in order. A document with K
// bookings always yields K canonical bookings; zero-room records are kept
// here and only dropped by the expander.
func (n *Normalizer) bookings(m *model.Model, resolver *Resolver, raw []any) {
	m.Bookings = make([]model.Booking, 0, len(raw))
	usedIDs := make(map[string]struct{}, len(raw))

	for _, rb := range raw {
		obj, ok := rb.(map[string]any)
		if !ok {
			// Non-object records still count toward K and still get a
			// synthesized id; treat them as an empty record.
			appLog.Warn("booking record is not an object; keeping as empty record")
			obj = map[string]any{}
		}

		var b model.Booking

		// Room set: rooms array, else singular room_id, else empty.
		for _, r := range sliceOf(obj["rooms"]) {
			if s := stringOf(r); s != "" {
				b.Rooms = append(b.Rooms, s)
			}
		}
		if len(b.Rooms) == 0 {
			if s := stringOf(obj["room_id"]); s != "" {
				b.Rooms = []string{s}
			}
		}

		// Building: explicit field, else first-room prefix, else default.
		b.BuildingID = stringOf(obj["building_id"])
		if b.BuildingID == "" {
			first := ""
			if len(b.Rooms) > 0 {
				first = b.Rooms[0]
			}
			b.BuildingID = DeriveBuildingID(first, n.DefaultBuildingID)
		}
		resolver.AddBuilding(b.BuildingID)
		for i, r := range b.Rooms {
			b.Rooms[i] = resolver.Resolve(r, b.BuildingID)
		}

		b.Status = strings.ToLower(stringOf(obj["status"]))

		for _, f := range bookingFieldDefaults {
			v := stringOf(obj[f.key])
			if v == "" {
				v = f.fallback
			}
			f.assign(&b, v)
		}
		// Legacy documents name the requester pic_name.
		if b.ByName == "" {
			b.ByName = stringOf(obj["pic_name"])
		}
		for _, wd := range sliceOf(obj["byweekday"]) {
			if s := stringOf(wd); s != "" {
				b.ByWeekday = append(b.ByWeekday, s)
			}
		}

		b.ID = stringOf(obj["id"])
		if b.ID == "" {
			b.ID = n.allocateID(&b, usedIDs)
		}
		usedIDs[b.ID] = struct{}{}

		for k, v := range obj {
			if isRecognizedBookingKey(k) {
				continue
			}
			if b.Extra == nil {
				b.Extra = make(map[string]any)
			}
			b.Extra[k] = v
		}

		m.Bookings = append(m.Bookings, b)
	}
}

// allocateID synthesizes a deterministic booking id from the record's stable
// fields: the building id plus a short content hash, with a numeric suffix
// on collision within this pass. Unlike a random suffix, the id survives
// reloads of an unchanged document.
func (n *Normalizer) allocateID(b *model.Booking, used map[string]struct{}) string {
	h := sha256.New()
	for _, part := range []string{
		b.BuildingID, strings.Join(b.Rooms, ","), b.Title, b.Status,
		b.StartDT, b.EndDT, b.DateFrom, b.DateTo, b.Date, b.Start, b.End,
		strings.Join(b.ByWeekday, ","),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	base := b.BuildingID + "-" + hex.EncodeToString(h.Sum(nil))[:6]

	id := base
	for i := 2; ; i++ {
		if _, taken := used[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

func isRecognizedBookingKey(k string) bool {
	if _, ok := specialBookingKeys[k]; ok {
		return true
	}
	for _, f := range bookingFieldDefaults {
		if f.key == k {
			return true
		}
	}
	return false
}

// roomLabelOf accepts a legacy room entry, which may be a bare string or an
// object carrying an id.
func roomLabelOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s := stringOf(t["id"]); s != "" {
			return s
		}
		return stringOf(t["name"])
	default:
		return stringOf(v)
	}
}

// stringOf coerces document values to strings the way the original consumer
// did: strings pass through, numbers drop a trailing ".0", everything else
// (including nil) is empty.
func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

func intOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		var n int
		fmt.Sscanf(t, "%d", &n)
		return n
	default:
		return 0
	}
}

func sliceOf(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

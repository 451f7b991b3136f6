package schedule

import "strings"

// Resolver maps raw room labels to canonical "<BuildingID>-<Label>" ids.
//
// A label that already carries a separator whose prefix matches a known
// building id (case-insensitively) is treated as canonical and returned
// unchanged. Anything else gets the context building id prepended; there is
// no failure mode — unresolved ambiguity means the whole label becomes the
// suffix of the current building.
type Resolver struct {
	known map[string]struct{}
}

// NewResolver builds a Resolver that recognizes the given building ids.
func NewResolver(buildingIDs []string) *Resolver {
	known := make(map[string]struct{}, len(buildingIDs))
	for _, id := range buildingIDs {
		if id == "" {
			continue
		}
		known[strings.ToUpper(id)] = struct{}{}
	}
	return &Resolver{known: known}
}

// AddBuilding registers another known building id.
func (r *Resolver) AddBuilding(id string) {
	if id != "" {
		r.known[strings.ToUpper(id)] = struct{}{}
	}
}

// Resolve returns the canonical room id for a raw label in the context of
// the given building.
func (r *Resolver) Resolve(label, buildingID string) string {
	if label == "" {
		return ""
	}
	if i := strings.Index(label, "-"); i > 0 {
		prefix := strings.ToUpper(label[:i])
		if _, ok := r.known[prefix]; ok {
			return label
		}
	}
	if buildingID == "" {
		return label
	}
	return buildingID + "-" + label
}

// DeriveBuildingID extracts a building id from a canonical room id: the
// prefix before the first "-", or fallback when the id carries none.
func DeriveBuildingID(roomID, fallback string) string {
	if i := strings.Index(roomID, "-"); i > 0 {
		return roomID[:i]
	}
	return fallback
}

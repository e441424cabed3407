package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// UnrestrictedDistanceKm is the max-distance ceiling. At or above it the
// distance filter is inactive.
const UnrestrictedDistanceKm = 50.0

// SortKey selects the ordering of the displayed list.
type SortKey string

const (
	SortByName     SortKey = "name"
	SortByDistance SortKey = "distance"
	SortByRating   SortKey = "rating"
)

// ParseSortKey converts user input to a SortKey. Empty input selects name.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByName:
		return SortByName, nil
	case SortByDistance:
		return SortByDistance, nil
	case SortByRating:
		return SortByRating, nil
	default:
		return "", eris.Errorf("model: unknown sort key %q", s)
	}
}

// FilterState is the immutable set of user-selected filters. Update methods
// return a modified copy and leave the receiver untouched.
type FilterState struct {
	SearchTerm    string   `json:"search_term"`
	WasteTypes    []string `json:"waste_types"`
	OpenNow       bool     `json:"open_now"`
	MaxDistanceKm float64  `json:"max_distance_km"`
	SortBy        SortKey  `json:"sort_by"`
}

// DefaultFilterState returns the state a view starts with.
func DefaultFilterState() FilterState {
	return FilterState{
		MaxDistanceKm: UnrestrictedDistanceKm,
		SortBy:        SortByName,
	}
}

// WithSearch sets the search term.
func (f FilterState) WithSearch(term string) FilterState {
	out := f.copy()
	out.SearchTerm = term
	return out
}

// ToggleWasteType adds the category if absent and removes it if present.
func (f FilterState) ToggleWasteType(wasteType string) FilterState {
	out := f.copy()
	wt := strings.ToLower(strings.TrimSpace(wasteType))
	if wt == "" {
		return out
	}
	for i, t := range out.WasteTypes {
		if t == wt {
			out.WasteTypes = append(out.WasteTypes[:i], out.WasteTypes[i+1:]...)
			return out
		}
	}
	out.WasteTypes = append(out.WasteTypes, wt)
	return out
}

// WithWasteTypes replaces the selected categories.
func (f FilterState) WithWasteTypes(types ...string) FilterState {
	out := f.copy()
	out.WasteTypes = nil
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out.WasteTypes = append(out.WasteTypes, t)
		}
	}
	return out
}

// WithOpenNow sets the open-now toggle.
func (f FilterState) WithOpenNow(open bool) FilterState {
	out := f.copy()
	out.OpenNow = open
	return out
}

// WithMaxDistance sets the distance ceiling in kilometers.
func (f FilterState) WithMaxDistance(km float64) FilterState {
	out := f.copy()
	out.MaxDistanceKm = km
	return out
}

// WithSort sets the sort key.
func (f FilterState) WithSort(key SortKey) FilterState {
	out := f.copy()
	out.SortBy = key
	return out
}

// DistanceLimited reports whether the max-distance filter would restrict
// results, given that a user location is known.
func (f FilterState) DistanceLimited() bool {
	return f.MaxDistanceKm < UnrestrictedDistanceKm
}

func (f FilterState) copy() FilterState {
	out := f
	if f.WasteTypes != nil {
		out.WasteTypes = append([]string(nil), f.WasteTypes...)
	}
	return out
}

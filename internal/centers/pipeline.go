package centers

import (
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ecocollect/ecocollect-cli/internal/geo"
	"github.com/ecocollect/ecocollect-cli/internal/hours"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// missingDistance sorts centers without a distance after every real one.
const missingDistance = math.MaxFloat64

// Apply derives the displayed list from the unfiltered source. It never
// modifies centers; every returned view holds its own copy. Steps run in
// order: search, open now, waste types, distance annotation, max distance,
// stable sort. A nil checker evaluates hours schedules.
func Apply(centers []model.Center, f model.FilterState, loc *model.UserLocation, now time.Time, checker hours.Checker) []model.CenterView {
	out := make([]model.CenterView, 0, len(centers))
	if len(centers) == 0 {
		return out
	}
	if checker == nil {
		checker = hours.NewScheduleChecker()
	}

	fold := cases.Fold()
	term := fold.String(strings.TrimSpace(f.SearchTerm))

	for _, c := range centers {
		if term != "" && !matchesSearch(fold, c, term) {
			continue
		}

		open := checker.IsOpen(c.Hours, now)
		if f.OpenNow && !open {
			continue
		}

		if len(f.WasteTypes) > 0 && !acceptsAny(c, f.WasteTypes) {
			continue
		}

		v := model.CenterView{Center: c.Clone(), OpenNow: open}
		if loc != nil && c.HasCoordinates() {
			d := geo.DistanceKm(loc.Latitude, loc.Longitude, *c.Latitude, *c.Longitude)
			v.DistanceKm = &d
		}

		if loc != nil && f.DistanceLimited() && v.DistanceKm != nil && *v.DistanceKm > f.MaxDistanceKm {
			continue
		}
		out = append(out, v)
	}

	sortViews(out, f.SortBy, loc != nil)
	return out
}

// WithinRadius keeps the views whose distance is at most km, preserving
// order. Unlike the max-distance filter it has no ceiling, and views without
// a distance are dropped.
func WithinRadius(views []model.CenterView, km float64) []model.CenterView {
	out := make([]model.CenterView, 0, len(views))
	for _, v := range views {
		if v.DistanceKm != nil && *v.DistanceKm <= km {
			out = append(out, v)
		}
	}
	return out
}

func matchesSearch(fold cases.Caser, c model.Center, term string) bool {
	for _, field := range []string{c.Name, c.Company, c.Address} {
		if field != "" && strings.Contains(fold.String(field), term) {
			return true
		}
	}
	return false
}

func acceptsAny(c model.Center, types []string) bool {
	for _, t := range types {
		if c.Accepts(t) {
			return true
		}
	}
	return false
}

func sortViews(views []model.CenterView, key model.SortKey, haveLocation bool) {
	switch key {
	case model.SortByDistance:
		if !haveLocation {
			return
		}
		slices.SortStableFunc(views, func(a, b model.CenterView) int {
			return compareFloat(distanceOrMissing(a), distanceOrMissing(b))
		})
	case model.SortByRating:
		slices.SortStableFunc(views, func(a, b model.CenterView) int {
			return compareFloat(b.RatingOrZero(), a.RatingOrZero())
		})
	default:
		col := collate.New(language.English, collate.IgnoreCase)
		slices.SortStableFunc(views, func(a, b model.CenterView) int {
			return col.CompareString(a.Name, b.Name)
		})
	}
}

func distanceOrMissing(v model.CenterView) float64 {
	if v.DistanceKm == nil {
		return missingDistance
	}
	return *v.DistanceKm
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package centers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocollect/ecocollect-cli/internal/hours"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// monday10 is Monday 2024-10-14 10:00 local time.
var monday10 = time.Date(2024, 10, 14, 10, 0, 0, 0, time.Local)

func names(views []model.CenterView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Name)
	}
	return out
}

func ids(views []model.CenterView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestApply_TwoCenterScenario(t *testing.T) {
	src := []model.Center{
		{ID: "1", Name: "A", Latitude: model.Float(0), Longitude: model.Float(0)},
		{ID: "2", Name: "B", Latitude: model.Float(0), Longitude: model.Float(1)},
	}
	loc := &model.UserLocation{Latitude: 0, Longitude: 0}
	f := model.DefaultFilterState().WithSort(model.SortByDistance)

	got := Apply(src, f, loc, monday10, nil)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"A", "B"}, names(got))
	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, 0, *got[0].DistanceKm, 1e-9)
	require.NotNil(t, got[1].DistanceKm)
	assert.InDelta(t, 111.2, *got[1].DistanceKm, 0.05)
}

func TestApply_NameSortCaseInsensitive(t *testing.T) {
	src := []model.Center{
		{ID: "1", Name: "Bravo"},
		{ID: "2", Name: "alpha"},
		{ID: "3", Name: "Charlie"},
	}
	got := Apply(src, model.DefaultFilterState(), nil, monday10, nil)
	assert.Equal(t, []string{"alpha", "Bravo", "Charlie"}, names(got))
}

func TestApply_DistanceSortWithoutLocationKeepsOrder(t *testing.T) {
	src := []model.Center{
		{ID: "1", Name: "Zulu", Latitude: model.Float(1), Longitude: model.Float(1)},
		{ID: "2", Name: "Alpha", Latitude: model.Float(0), Longitude: model.Float(0)},
		{ID: "3", Name: "Mike"},
	}
	got := Apply(src, model.DefaultFilterState().WithSort(model.SortByDistance), nil, monday10, nil)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
	for _, v := range got {
		assert.Nil(t, v.DistanceKm)
	}
}

func TestApply_DistanceSortMissingLast(t *testing.T) {
	src := []model.Center{
		{ID: "far", Name: "Far", Latitude: model.Float(0), Longitude: model.Float(10)},
		{ID: "none", Name: "None"},
		{ID: "near", Name: "Near", Latitude: model.Float(0), Longitude: model.Float(0.1)},
	}
	loc := &model.UserLocation{}
	got := Apply(src, model.DefaultFilterState().WithSort(model.SortByDistance), loc, monday10, nil)
	assert.Equal(t, []string{"near", "far", "none"}, ids(got))
}

func TestApply_RatingSortDescendingStable(t *testing.T) {
	src := []model.Center{
		{ID: "1", Name: "One", Rating: model.Float(4.6)},
		{ID: "2", Name: "Two"},
		{ID: "3", Name: "Three", Rating: model.Float(4.8)},
		{ID: "4", Name: "Four", Rating: model.Float(4.6)},
		{ID: "5", Name: "Five", Rating: model.Float(0)},
	}
	got := Apply(src, model.DefaultFilterState().WithSort(model.SortByRating), nil, monday10, nil)
	assert.Equal(t, []string{"3", "1", "4", "2", "5"}, ids(got))
}

func TestApply_NameSortStableOnTies(t *testing.T) {
	src := []model.Center{
		{ID: "1", Name: "Depot"},
		{ID: "2", Name: "depot"},
		{ID: "3", Name: "DEPOT"},
	}
	got := Apply(src, model.DefaultFilterState(), nil, monday10, nil)
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
}

func TestApply_Search(t *testing.T) {
	src := DefaultFixture()
	src = append(src, model.Center{ID: "4", Name: "No Extras"})

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"3", "2", "4", "1"}},
		{"   ", []string{"3", "2", "4", "1"}},
		{"safaricom", []string{"1"}},
		{"GREEN CYCLE KENYA", []string{"2"}},
		{"westlands", []string{"3"}},
		{"nairobi", []string{"1"}},
		{"e", []string{"3", "2", "4", "1"}},
		{"nothing-matches", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			f := model.DefaultFilterState().WithSearch(tt.term)
			got := Apply(src, f, nil, monday10, nil)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestApply_WasteTypesOR(t *testing.T) {
	src := DefaultFixture()

	f := model.DefaultFilterState().WithWasteTypes("paper")
	assert.Equal(t, []string{"2"}, ids(Apply(src, f, nil, monday10, nil)))

	f = model.DefaultFilterState().WithWasteTypes("paper", "electronic")
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids(Apply(src, f, nil, monday10, nil)))

	f = model.DefaultFilterState().WithWasteTypes("GLASS")
	assert.ElementsMatch(t, []string{"2", "3"}, ids(Apply(src, f, nil, monday10, nil)))

	f = model.DefaultFilterState().WithWasteTypes()
	assert.Len(t, Apply(src, f, nil, monday10, nil), 3)
}

func TestApply_OpenNow(t *testing.T) {
	src := []model.Center{
		{ID: "weekday", Name: "Weekday", Hours: "Mon - Fri: 8:00 AM - 5:00 PM"},
		{ID: "sat", Name: "Saturday", Hours: "Sat: 9AM - 1PM"},
		{ID: "none", Name: "No Hours"},
		{ID: "junk", Name: "Junk", Hours: "call ahead"},
	}
	f := model.DefaultFilterState().WithOpenNow(true)

	got := Apply(src, f, nil, monday10, nil)
	assert.Equal(t, []string{"weekday"}, ids(got))
	assert.True(t, got[0].OpenNow)

	saturday := time.Date(2024, 10, 19, 10, 0, 0, 0, time.Local)
	assert.Equal(t, []string{"sat"}, ids(Apply(src, f, nil, saturday, nil)))

	// Without the filter nothing is removed for missing or odd hours.
	all := Apply(src, model.DefaultFilterState(), nil, monday10, nil)
	assert.Len(t, all, 4)
}

func TestApply_OpenNowFixedWindow(t *testing.T) {
	src := []model.Center{
		{ID: "sat", Name: "Saturday only", Hours: "Sat: 9AM - 1PM"},
		{ID: "none", Name: "No Hours"},
	}
	f := model.DefaultFilterState().WithOpenNow(true)
	got := Apply(src, f, nil, monday10, hours.DefaultFixedWindow())
	assert.Equal(t, []string{"sat"}, ids(got))

	evening := time.Date(2024, 10, 14, 19, 0, 0, 0, time.Local)
	assert.Empty(t, Apply(src, f, nil, evening, hours.DefaultFixedWindow()))
}

func TestApply_MaxDistance(t *testing.T) {
	src := []model.Center{
		{ID: "near", Name: "Near", Latitude: model.Float(0), Longitude: model.Float(0.05)},
		{ID: "far", Name: "Far", Latitude: model.Float(0), Longitude: model.Float(1)},
		{ID: "nocoords", Name: "No Coords"},
	}
	loc := &model.UserLocation{}

	f := model.DefaultFilterState().WithMaxDistance(10)
	assert.ElementsMatch(t, []string{"near", "nocoords"}, ids(Apply(src, f, loc, monday10, nil)))

	// Unrestricted ceiling disables the filter.
	f = model.DefaultFilterState().WithMaxDistance(model.UnrestrictedDistanceKm)
	assert.Len(t, Apply(src, f, loc, monday10, nil), 3)

	// Without a location the filter is inactive.
	f = model.DefaultFilterState().WithMaxDistance(1)
	assert.Len(t, Apply(src, f, nil, monday10, nil), 3)
}

func TestApply_MaxDistanceInclusive(t *testing.T) {
	src := []model.Center{
		{ID: "b", Name: "B", Latitude: model.Float(0), Longitude: model.Float(0.2)},
	}
	loc := &model.UserLocation{}
	views := Apply(src, model.DefaultFilterState(), loc, monday10, nil)
	require.Len(t, views, 1)
	limit := *views[0].DistanceKm
	require.Less(t, limit, model.UnrestrictedDistanceKm)

	assert.Len(t, Apply(src, model.DefaultFilterState().WithMaxDistance(limit), loc, monday10, nil), 1)
	assert.Empty(t, Apply(src, model.DefaultFilterState().WithMaxDistance(limit-0.01), loc, monday10, nil))
}

func TestApply_DoesNotMutateSource(t *testing.T) {
	src := DefaultFixture()
	before := model.CloneCenters(src)

	got := Apply(src, model.DefaultFilterState().WithSort(model.SortByRating), &model.UserLocation{Latitude: -1.29, Longitude: 36.82}, monday10, nil)
	require.NotEmpty(t, got)
	got[0].Name = "changed"
	*got[0].Latitude = 99
	got[0].AcceptedWasteTypes[0] = "changed"

	assert.Equal(t, before, src)
}

func TestApply_NilAndEmptySource(t *testing.T) {
	got := Apply(nil, model.DefaultFilterState(), nil, monday10, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = Apply([]model.Center{}, model.DefaultFilterState(), nil, monday10, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApply_NoCoordinatesNeverExcluded(t *testing.T) {
	src := []model.Center{{ID: "x", Name: "Nowhere"}}
	loc := &model.UserLocation{Latitude: 10, Longitude: 10}
	f := model.DefaultFilterState().WithMaxDistance(1).WithSort(model.SortByDistance)
	got := Apply(src, f, loc, monday10, nil)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].DistanceKm)
}

func TestWithinRadius(t *testing.T) {
	src := []model.Center{
		{ID: "near", Name: "Near", Latitude: model.Float(0), Longitude: model.Float(0.02)},
		{ID: "mid", Name: "Mid", Latitude: model.Float(0), Longitude: model.Float(0.8)},
		{ID: "far", Name: "Far", Latitude: model.Float(0), Longitude: model.Float(5)},
		{ID: "nowhere", Name: "Nowhere"},
	}
	loc := &model.UserLocation{Latitude: 0, Longitude: 0}
	views := Apply(src, model.DefaultFilterState().WithSort(model.SortByDistance), loc, monday10, nil)
	require.Len(t, views, 4)

	tests := []struct {
		km   float64
		want []string
	}{
		{5, []string{"near"}},
		{50, []string{"near"}},
		{100, []string{"near", "mid"}},
		{1000, []string{"near", "mid", "far"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ids(WithinRadius(views, tt.km)), "radius %v", tt.km)
	}
	assert.Empty(t, WithinRadius(nil, 10))
}

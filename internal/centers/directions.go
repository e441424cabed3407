package centers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// DefaultMapsBaseURL is the Google Maps root used for directions links.
const DefaultMapsBaseURL = "https://www.google.com/maps"

// Directions builds external map links.
type Directions struct {
	base string
}

// NewDirections creates a link builder rooted at baseURL.
func NewDirections(baseURL string) Directions {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultMapsBaseURL
	}
	return Directions{base: baseURL}
}

// URL returns a route from loc to the center when both positions are
// known, otherwise a search for the center's address (or its name when the
// address is blank).
func (d Directions) URL(c model.Center, loc *model.UserLocation) string {
	if loc != nil && c.HasCoordinates() {
		return d.base + "/dir/" + coord(loc.Latitude, loc.Longitude) + "/" + coord(*c.Latitude, *c.Longitude)
	}
	query := strings.TrimSpace(c.Address)
	if query == "" {
		query = strings.TrimSpace(c.Name)
	}
	return d.base + "/search/" + url.PathEscape(query)
}

func coord(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

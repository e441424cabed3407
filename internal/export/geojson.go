package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// FeatureCollection builds a GeoJSON collection with one point feature
// per center. Centers without coordinates are left out; the number
// skipped is returned.
func FeatureCollection(views []model.CenterView) (*geojson.FeatureCollection, int) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(views))}
	skipped := 0
	for _, v := range views {
		if !v.HasCoordinates() {
			skipped++
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{*v.Longitude, *v.Latitude}).SetSRID(4326)

		props := map[string]any{
			"name":                 v.Name,
			"company":              v.Company,
			"address":              v.Address,
			"phone":                v.Phone,
			"hours":                v.Hours,
			"accepted_waste_types": v.AcceptedWasteTypes,
			"open_now":             v.OpenNow,
		}
		if v.Rating != nil {
			props["rating"] = *v.Rating
		}
		if v.DistanceKm != nil {
			props["distance_km"] = *v.DistanceKm
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         v.ID,
			Geometry:   pt,
			Properties: props,
		})
	}
	return fc, skipped
}

// GeoJSON writes views as a FeatureCollection and returns how many
// centers were skipped for lacking coordinates.
func GeoJSON(w io.Writer, views []model.CenterView) (int, error) {
	fc, skipped := FeatureCollection(views)
	data, err := json.Marshal(fc)
	if err != nil {
		return skipped, eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return skipped, eris.Wrap(err, "export: write geojson")
	}
	return skipped, nil
}

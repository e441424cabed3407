package model

import "strings"

// Waste categories offered as filters.
const (
	WastePlastic    = "plastic"
	WasteGlass      = "glass"
	WasteMetal      = "metal"
	WasteElectronic = "electronic"
	WastePaper      = "paper"
)

// WasteTypes lists the selectable waste categories in display order.
var WasteTypes = []string{WastePlastic, WasteGlass, WasteMetal, WasteElectronic, WastePaper}

// Center is a physical waste drop-off site.
type Center struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	Company            string   `json:"company,omitempty" yaml:"company"`
	Address            string   `json:"address,omitempty" yaml:"address"`
	Phone              string   `json:"phone,omitempty" yaml:"phone"`
	Email              string   `json:"email,omitempty" yaml:"email"`
	Hours              string   `json:"hours,omitempty" yaml:"hours"`
	Description        string   `json:"description,omitempty" yaml:"description"`
	Latitude           *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude          *float64 `json:"longitude,omitempty" yaml:"longitude"`
	AcceptedWasteTypes []string `json:"accepted_waste_types,omitempty" yaml:"accepted_waste_types"`
	Rating             *float64 `json:"rating,omitempty" yaml:"rating"`
}

// Valid reports whether the center carries the minimum identity fields.
func (c Center) Valid() bool {
	return strings.TrimSpace(c.ID) != "" && strings.TrimSpace(c.Name) != ""
}

// HasCoordinates reports whether both latitude and longitude are known.
func (c Center) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// RatingOrZero returns the rating, treating a missing rating as 0.
func (c Center) RatingOrZero() float64 {
	if c.Rating == nil {
		return 0
	}
	return *c.Rating
}

// Accepts reports whether the center takes the given waste category.
// Comparison ignores case.
func (c Center) Accepts(wasteType string) bool {
	for _, t := range c.AcceptedWasteTypes {
		if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(wasteType)) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so derived projections never alias the source.
func (c Center) Clone() Center {
	out := c
	if c.Latitude != nil {
		v := *c.Latitude
		out.Latitude = &v
	}
	if c.Longitude != nil {
		v := *c.Longitude
		out.Longitude = &v
	}
	if c.Rating != nil {
		v := *c.Rating
		out.Rating = &v
	}
	if c.AcceptedWasteTypes != nil {
		out.AcceptedWasteTypes = append([]string(nil), c.AcceptedWasteTypes...)
	}
	return out
}

// CloneCenters deep-copies a list of centers. A nil input yields an empty,
// non-nil slice.
func CloneCenters(in []Center) []Center {
	out := make([]Center, 0, len(in))
	for _, c := range in {
		out = append(out, c.Clone())
	}
	return out
}

// CenterView is a center annotated with values derived for one render pass.
type CenterView struct {
	Center
	DistanceKm *float64 `json:"distance_km,omitempty"`
	OpenNow    bool     `json:"open_now"`
}

// UserLocation is the viewer's position in decimal degrees.
type UserLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Float returns a pointer to v. Handy for optional fields in fixtures and tests.
func Float(v float64) *float64 {
	return &v
}

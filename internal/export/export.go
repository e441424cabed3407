// Package export renders center views for terminals, files and JSON
// clients.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatGeoJSON Format = "geojson"
	FormatXLSX    Format = "xlsx"
)

// ParseFormat validates a format name. Empty selects table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatGeoJSON, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q (want table, json, geojson or xlsx)", s)
	}
}

// Binary reports whether the format should not be written to a terminal.
func (f Format) Binary() bool { return f == FormatXLSX }

// ListResponse is the JSON shape of a rendered list.
type ListResponse struct {
	Centers []model.CenterView `json:"centers"`
	Count   int                `json:"count"`
	Source  string             `json:"source,omitempty"`
	Warning string             `json:"warning,omitempty"`
}

// NewListResponse wraps views for JSON output. A nil list encodes as [].
func NewListResponse(views []model.CenterView, source, warning string) ListResponse {
	if views == nil {
		views = []model.CenterView{}
	}
	return ListResponse{Centers: views, Count: len(views), Source: source, Warning: warning}
}

// Write renders views in the given format.
func Write(w io.Writer, format Format, resp ListResponse) error {
	switch format {
	case FormatTable, "":
		return Table(w, resp)
	case FormatJSON:
		return JSON(w, resp)
	case FormatGeoJSON:
		_, err := GeoJSON(w, resp.Centers)
		return err
	case FormatXLSX:
		return XLSX(w, resp.Centers)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// JSON writes resp as indented JSON.
func JSON(w io.Writer, resp ListResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(resp), "export: encode json")
}

// Table writes an aligned plain-text table.
func Table(w io.Writer, resp ListResponse) error {
	if resp.Warning != "" {
		_, _ = fmt.Fprintf(w, "Note: %s\n\n", resp.Warning)
	}
	if len(resp.Centers) == 0 {
		_, err := fmt.Fprintln(w, "No centers match the current filters.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tTYPES\tDISTANCE\tRATING\tOPEN")
	_, _ = fmt.Fprintln(tw, "--\t----\t-------\t-----\t--------\t------\t----")
	for _, v := range resp.Centers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID,
			truncate(v.Name, 36),
			truncate(v.Address, 32),
			strings.Join(v.AcceptedWasteTypes, ", "),
			FormatDistance(v.DistanceKm),
			formatRating(v.Rating),
			yesNo(v.OpenNow),
		)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "export: flush table")
	}
	_, err := fmt.Fprintf(w, "\n%d center(s)\n", len(resp.Centers))
	return err
}

// Detail writes one center as key/value lines.
func Detail(w io.Writer, c model.Center, source, warning string) error {
	if warning != "" {
		_, _ = fmt.Fprintf(w, "Note: %s\n\n", warning)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			_, _ = fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("ID", c.ID)
	row("Name", c.Name)
	row("Company", c.Company)
	row("Address", c.Address)
	row("Phone", c.Phone)
	row("Email", c.Email)
	row("Hours", c.Hours)
	row("Accepts", strings.Join(c.AcceptedWasteTypes, ", "))
	if c.Rating != nil {
		row("Rating", formatRating(c.Rating))
	}
	if c.HasCoordinates() {
		row("Location", strconv.FormatFloat(*c.Latitude, 'f', -1, 64)+", "+strconv.FormatFloat(*c.Longitude, 'f', -1, 64))
	}
	row("Description", c.Description)
	row("Source", source)
	return eris.Wrap(tw.Flush(), "export: flush detail")
}

// FormatDistance renders a distance for display; "-" when unknown.
func FormatDistance(km *float64) string {
	if km == nil {
		return "-"
	}
	if *km < 1 {
		return fmt.Sprintf("%.0f m", *km*1000)
	}
	return fmt.Sprintf("%.1f km", *km)
}

func formatRating(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', 1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// SheetName is the worksheet the XLSX export writes.
const SheetName = "Centers"

var xlsxHeader = []string{
	"ID", "Name", "Company", "Address", "Phone", "Hours",
	"Accepted Waste Types", "Latitude", "Longitude", "Rating", "Distance (km)", "Open Now",
}

// Workbook builds an XLSX file with one row per center.
func Workbook(views []model.CenterView) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}

	for _, v := range views {
		row := sheet.AddRow()
		for _, s := range []string{v.ID, v.Name, v.Company, v.Address, v.Phone, v.Hours, strings.Join(v.AcceptedWasteTypes, ", ")} {
			row.AddCell().SetString(s)
		}
		addOptionalFloat(row, v.Latitude)
		addOptionalFloat(row, v.Longitude)
		addOptionalFloat(row, v.Rating)
		addOptionalFloat(row, v.DistanceKm)
		row.AddCell().SetBool(v.OpenNow)
	}
	return f, nil
}

// XLSX writes views as an XLSX workbook.
func XLSX(w io.Writer, views []model.CenterView) error {
	f, err := Workbook(views)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addOptionalFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

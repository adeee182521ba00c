package importer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"gopkg.in/yaml.v3"
)

// Export writes recs in format. The CSV id column is only written when
// some record carries an id.
func Export(w io.Writer, format Format, recs []Record) error {
	switch format {
	case FormatJSON:
		if recs == nil {
			recs = []Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case FormatYAML:
		return encodeYAML(w, recs)
	case FormatCSV:
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	columns := Columns
	if !hasIDs(recs) {
		columns = Columns[1:]
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, rec := range recs {
		row := make([]string, 0, len(columns))
		for _, col := range columns {
			row = append(row, rec.field(col))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (rec Record) field(col string) string {
	switch col {
	case "id":
		if rec.ID == 0 {
			return ""
		}
		return strconv.FormatInt(rec.ID, 10)
	case "impact":
		return rec.Impact
	case "description":
		return rec.Description
	case "redundancy":
		return strconv.FormatBool(rec.Redundancy)
	case "ip_address":
		return string(rec.IPAddress)
	case "vrf":
		return string(rec.VRF)
	case "device":
		return string(rec.Device)
	case "vm":
		return string(rec.VM)
	}
	return ""
}

func hasIDs(recs []Record) bool {
	for _, rec := range recs {
		if rec.ID != 0 {
			return true
		}
	}
	return false
}

// ListingColumns are the columns of the IP address listing export.
var ListingColumns = []string{"ip_address", "vrf", "assigned_to", "impact", "redundancy"}

// WriteListing exports listing rows as they are shown in the table.
func WriteListing(w io.Writer, format Format, rows []model.IPAddressImpact) error {
	switch format {
	case FormatJSON:
		if rows == nil {
			rows = []model.IPAddressImpact{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatYAML:
		return encodeYAML(w, rows)
	case FormatCSV:
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ListingColumns); err != nil {
		return err
	}
	for _, row := range rows {
		redundancy := ""
		if row.Redundancy != nil {
			redundancy = strconv.FormatBool(*row.Redundancy)
		}
		if err := cw.Write([]string{row.Address, deref(row.VRFName), row.AssignedTo, deref(row.Impact), redundancy}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

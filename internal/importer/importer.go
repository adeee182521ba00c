// Package importer reads and writes Impact records as CSV, JSON or YAML.
//
// A record names its references the way people type them: an IP address
// by id or address (optionally narrowed by VRF name), a device or virtual
// machine by id or name. Resolve turns records into model.Impact values
// against the inventory; ToRecords does the reverse for export.
package importer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a serialisation format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts csv, json, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Columns in export order. Only impact is required on import.
var Columns = []string{"id", "impact", "description", "redundancy", "ip_address", "vrf", "device", "vm"}

// Ref is a reference typed by a person: a numeric id or a name. JSON and
// YAML numbers are accepted as well as strings.
type Ref string

// ID returns the reference as an id, when it is one.
func (r Ref) ID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(r)), 10, 64)
	return id, err == nil && id > 0
}

func (r Ref) IsZero() bool {
	return strings.TrimSpace(string(r)) == ""
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("reference must be an id or a name")
		}
		*r = Ref(n.String())
	}
	return nil
}

func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: reference must be an id or a name", node.Line)
	}
	if node.Tag == "!!null" {
		*r = ""
		return nil
	}
	*r = Ref(node.Value)
	return nil
}

// Record is one imported or exported Impact.
type Record struct {
	ID          int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Impact      string `json:"impact" yaml:"impact"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Redundancy  bool   `json:"redundancy" yaml:"redundancy"`
	IPAddress   Ref    `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	VRF         Ref    `json:"vrf,omitempty" yaml:"vrf,omitempty"`
	Device      Ref    `json:"device,omitempty" yaml:"device,omitempty"`
	VM          Ref    `json:"vm,omitempty" yaml:"vm,omitempty"`
}

// DetectFormat guesses the format of data from its first significant
// character: JSON starts with [ or {, YAML with a sequence dash or a
// document marker, anything else is CSV.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	switch {
	case len(trimmed) == 0:
		return FormatCSV
	case trimmed[0] == '[' || trimmed[0] == '{':
		return FormatJSON
	case bytes.HasPrefix(trimmed, []byte("---")) || bytes.HasPrefix(trimmed, []byte("- ")) || bytes.HasPrefix(trimmed, []byte("-\n")):
		return FormatYAML
	}
	return FormatCSV
}

// Parse reads records in format. An empty format is detected from the
// content.
func Parse(r io.Reader, format Format) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading import data: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	if format == "" {
		format = DetectFormat(data)
	}

	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// ErrEmpty is returned for input without any record.
var ErrEmpty = errors.New("no data to import")

func parseJSON(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if data[0] == '{' {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		return []Record{rec}, nil
	}

	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrEmpty
	}
	return recs, nil
}

func parseYAML(data []byte) ([]Record, error) {
	var recs []Record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrEmpty
	}
	return recs, nil
}

// detectDelimiter picks the delimiter among comma, semicolon and tab that
// occurs most often in the header line.
func detectDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}

	best, count := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := bytes.Count(header, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

func parseCSV(data []byte) ([]Record, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if !isColumn(name) {
			return nil, fmt.Errorf("unknown column %q", header[i])
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	if _, ok := index["impact"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "impact")
	}

	var recs []Record
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		if blank(fields) {
			continue
		}

		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(fields) {
				return strings.TrimSpace(fields[i])
			}
			return ""
		}

		rec := Record{
			Impact:      get("impact"),
			Description: get("description"),
			IPAddress:   Ref(get("ip_address")),
			VRF:         Ref(get("vrf")),
			Device:      Ref(get("device")),
			VM:          Ref(get("vm")),
		}
		if s := get("id"); s != "" {
			if rec.ID, err = strconv.ParseInt(s, 10, 64); err != nil || rec.ID <= 0 {
				return nil, fmt.Errorf("line %d: invalid id %q", line, s)
			}
		}
		if rec.Redundancy, err = ParseBool(get("redundancy")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}

	if len(recs) == 0 {
		return nil, ErrEmpty
	}
	return recs, nil
}

// ParseBool accepts true/false, 1/0, yes/no and oui/non. Empty is false.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no", "non", "n", "f":
		return false, nil
	case "true", "1", "yes", "oui", "y", "t":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func isColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

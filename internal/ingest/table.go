package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/htmlutil"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

// Column names used by bulk files, beyond the measured parameters.
const (
	ColumnArea      = "area"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnDate      = "date"
)

// Table is a decoded tabular file.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
	// Dropped counts data lines whose cell count did not match the header.
	Dropped int `json:"-"`
}

// Row maps a header to its raw cell value.
type Row map[string]string

// UnmarshalJSON accepts numbers, booleans and nulls as cell values, since
// clients often post rows straight from a spreadsheet library.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "ingest: decode row")
	}

	out := make(Row, len(raw))
	for k, v := range raw {
		key := normalizeHeader(k)
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[key] = strings.TrimSpace(s)
			continue
		}
		text := strings.TrimSpace(string(v))
		if text == "null" {
			text = ""
		}
		out[key] = text
	}
	*r = out
	return nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
}

// ParseDate accepts the date layouts commonly produced by spreadsheets.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a cell as a finite float.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParsedRow is the typed view of a Row. Cells that are blank or do not parse
// are left unset.
type ParsedRow struct {
	Area         string
	Latitude     *float64
	Longitude    *float64
	Date         time.Time
	HasDate      bool
	Measurements wqi.MeasurementSet
}

// ParseRow coerces a raw row against the schema. Zero is a real reading and is
// kept.
func ParseRow(schema wqi.Schema, row Row) ParsedRow {
	p := ParsedRow{
		Area:         htmlutil.PlainText(row[ColumnArea]),
		Measurements: wqi.MeasurementSet{},
	}
	if v, ok := ParseNumber(row[ColumnLatitude]); ok {
		p.Latitude = &v
	}
	if v, ok := ParseNumber(row[ColumnLongitude]); ok {
		p.Longitude = &v
	}
	p.Date, p.HasDate = ParseDate(row[ColumnDate])

	for _, name := range schema.Names() {
		if v, ok := ParseNumber(row[name]); ok {
			p.Measurements[name] = v
		}
	}
	return p
}

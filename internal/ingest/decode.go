package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var (
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = eris.New("empty file")
	// ErrUnsupportedFormat is returned for anything other than CSV or XLSX.
	ErrUnsupportedFormat = eris.New("unsupported file format")
)

// DecodeTable parses a CSV or XLSX payload into a header row plus one Row per
// data line. The format is picked from the filename extension. Header names are
// lower-cased so "pH" and "ph" address the same column.
func DecodeTable(filename string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		records [][]string
		err     error
		padRows bool
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = readCSV(data)
	case ".xlsx":
		records, err = readXLSX(data)
		// XLSX omits trailing blank cells, so short rows are still well formed.
		padRows = true
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	return buildTable(records, padRows)
}

func buildTable(records [][]string, padRows bool) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = normalizeHeader(h)
	}
	if allBlank(headers) {
		return nil, ErrEmptyFile
	}

	t := &Table{Headers: headers, Rows: make([]Row, 0, len(records)-1)}
	for _, rec := range records[1:] {
		if allBlank(rec) {
			continue
		}
		if padRows && len(rec) < len(headers) {
			rec = append(rec, make([]string, len(headers)-len(rec))...)
		}
		if len(rec) != len(headers) {
			t.Dropped++
			continue
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			row[h] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		for i := range rec {
			rec[i] = cleanCell(rec[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, ErrEmptyFile
	}

	sheet := f.Sheets[0]
	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cleanCell(cell.String())
		}
		records = append(records, cells)
	}
	return records, nil
}

func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func normalizeHeader(s string) string {
	return strings.ToLower(cleanCell(s))
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

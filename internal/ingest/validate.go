package ingest

import (
	"fmt"
	"strings"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/metrics"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

const (
	MsgInvalidNumber = "Must be a valid number"
	MsgInvalidDate   = "Must be a valid date (YYYY-MM-DD)"
)

// RowError is a field-level problem in a bulk file. Row is 0-based.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MissingColumnsError is returned when required headers are absent.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ValidationResult echoes the rows untouched alongside every field error.
type ValidationResult struct {
	Headers    []string    `json:"headers"`
	Rows       []Row       `json:"rows"`
	Errors     []RowError  `json:"errors"`
	TotalRows  int         `json:"totalRows"`
	ErrorCount int         `json:"errorCount"`
	Parsed     []ParsedRow `json:"-"`
}

type numericColumn struct {
	name    string
	inRange func(float64) bool
	message string
}

// Validator checks bulk rows against a parameter schema.
type Validator struct {
	schema   wqi.Schema
	required []string
	numeric  []numericColumn
}

func NewValidator(schema wqi.Schema) *Validator {
	v := &Validator{
		schema:   schema,
		required: append([]string{ColumnArea, ColumnLatitude, ColumnLongitude, ColumnDate}, schema.Names()...),
		numeric: []numericColumn{
			coordinateColumn(ColumnLatitude, 90),
			coordinateColumn(ColumnLongitude, 180),
		},
	}
	for _, p := range schema.Parameters() {
		v.numeric = append(v.numeric, numericColumn{name: p.Name, inRange: p.InRange, message: p.RangeMessage()})
	}
	return v
}

func coordinateColumn(name string, limit float64) numericColumn {
	return numericColumn{
		name:    name,
		inRange: func(f float64) bool { return f >= -limit && f <= limit },
		message: wqi.RangeMessage(-limit, limit, ""),
	}
}

// RequiredColumns lists the headers every bulk file must carry.
func (v *Validator) RequiredColumns() []string {
	return append([]string(nil), v.required...)
}

// Validate checks headers first; a missing column stops before any row is
// examined. Blank cells are not errors.
func (v *Validator) Validate(t *Table) (*ValidationResult, error) {
	present := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		present[h] = true
	}
	var missing []string
	for _, col := range v.required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	res := &ValidationResult{
		Headers:   t.Headers,
		Rows:      t.Rows,
		Errors:    []RowError{},
		TotalRows: len(t.Rows),
		Parsed:    make([]ParsedRow, len(t.Rows)),
	}
	for i, row := range t.Rows {
		res.Errors = append(res.Errors, v.validateRow(i, row)...)
		res.Parsed[i] = ParseRow(v.schema, row)
	}
	res.ErrorCount = len(res.Errors)

	for _, e := range res.Errors {
		metrics.ValidationErrors.WithLabelValues(e.Field).Inc()
	}
	return res, nil
}

func (v *Validator) validateRow(i int, row Row) []RowError {
	var errs []RowError
	for _, col := range v.numeric {
		raw := strings.TrimSpace(row[col.name])
		if raw == "" {
			continue
		}
		f, ok := ParseNumber(raw)
		if !ok {
			errs = append(errs, RowError{Row: i, Field: col.name, Message: MsgInvalidNumber})
			continue
		}
		if !col.inRange(f) {
			errs = append(errs, RowError{Row: i, Field: col.name, Message: col.message})
		}
	}

	if raw := strings.TrimSpace(row[ColumnDate]); raw != "" {
		if _, ok := ParseDate(raw); !ok {
			errs = append(errs, RowError{Row: i, Field: ColumnDate, Message: MsgInvalidDate})
		}
	}
	return errs
}

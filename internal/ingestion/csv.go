package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvTable reads a delimited report whose first row names the columns.
type csvTable struct {
	reader  *csv.Reader
	columns map[string]int
	line    int
}

func newCSVTable(data []byte, comma rune, required ...string) (*csvTable, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return &csvTable{reader: reader, columns: columns, line: 1}, nil
}

// next returns the following non-blank row, or io.EOF.
func (t *csvTable) next() (csvRow, error) {
	for {
		t.line++
		row, err := t.reader.Read()
		if err == io.EOF {
			return csvRow{}, io.EOF
		}
		if err != nil {
			return csvRow{}, fmt.Errorf("line %d: %w", t.line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		return csvRow{table: t, fields: row}, nil
	}
}

type csvRow struct {
	table  *csvTable
	fields []string
}

func (r csvRow) get(column string) string {
	i, ok := r.table.columns[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r csvRow) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", r.table.line, fmt.Sprintf(format, args...))
}

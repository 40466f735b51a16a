package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Frame is a raw table: a header and string cells, one row per customer.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// ReadCSV loads a comma separated file with a header row.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer file.Close()

	frame, err := LoadFrame(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frame, nil
}

// LoadFrame parses CSV from r. A leading UTF-8 byte order mark is stripped.
func LoadFrame(r io.Reader) (*Frame, error) {
	utf8Reader := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(utf8Reader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header row", ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	frame := &Frame{Columns: header}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrSchema, parseErr.Line, parseErr.Err)
			}
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		frame.Rows = append(frame.Rows, rec)
	}
	return frame, nil
}

// Index returns the position of column, or -1.
func (f *Frame) Index(column string) int {
	for i, c := range f.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Len is the number of data rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Column copies out one column's cells.
func (f *Frame) Column(idx int) []string {
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out
}

// alignTo reorders f's columns to match columns. Both frames must carry the
// same set of names.
func (f *Frame) alignTo(columns []string) (*Frame, error) {
	if len(f.Columns) != len(columns) {
		return nil, fmt.Errorf("%w: column count %d does not match %d", ErrSchema, len(f.Columns), len(columns))
	}
	order := make([]int, len(columns))
	for i, name := range columns {
		idx := f.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: column %q not present in both files", ErrSchema, name)
		}
		order[i] = idx
	}
	out := &Frame{Columns: append([]string(nil), columns...), Rows: make([][]string, len(f.Rows))}
	for r, row := range f.Rows {
		aligned := make([]string, len(order))
		for i, idx := range order {
			aligned[i] = row[idx]
		}
		out.Rows[r] = aligned
	}
	return out, nil
}

// concat appends other's rows after f's rows. Columns must already match.
func concat(f, other *Frame) *Frame {
	rows := make([][]string, 0, len(f.Rows)+len(other.Rows))
	rows = append(rows, f.Rows...)
	rows = append(rows, other.Rows...)
	return &Frame{Columns: append([]string(nil), f.Columns...), Rows: rows}
}

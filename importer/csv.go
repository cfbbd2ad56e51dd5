/*
Package importer moves member and log data between the document store and
spreadsheet CSV files.

PURPOSE:
  The club's history lives in spreadsheets of several vintages. Import
  recognizes each row's schema, maps it to the stored record shape and
  writes it in chunked batches. Export produces backup files that import
  reads back without duplicating anything.

SCHEMAS (first match wins, per row):
  1. Member backup  - has SystemID
  2. Legacy member  - has Key and "e-mail address"
     Legacy credit  - has Key and When/Hours
  3. Log backup     - has LogID and MemberEmail
  Anything else is skipped and counted.

SEE ALSO:
  - import.go: Row mapping and cross-reference lookups
  - export.go: Backup CSVs and legacy clear
*/
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one CSV record keyed by header. A header absent from the file is
// absent from the map, which is different from an empty cell.
type Row map[string]string

// Get returns the trimmed cell value, "" if the column is missing.
func (r Row) Get(col string) string { return strings.TrimSpace(r[col]) }

// Has reports whether the file has the column at all.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadRows parses a header-row CSV. Blank lines are skipped; short rows are
// padded so every header is present.
func ReadRows(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read line %d: %w", len(rows)+2, err)
		}
		if blank(rec) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteRows writes header followed by one line per row, in header order.
func WriteRows(w io.Writer, header []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, row := range rows {
		for i, h := range header {
			rec[i] = row[h]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

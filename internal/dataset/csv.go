package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a delimited file loaded into memory: the header plus rows in file order.
type Table struct {
	Header []string
	Rows   []Row
}

// ReadTable reads a delimiter-separated table with a header row.
//
// Short records are padded with "". Records with more fields than the header are rejected.
func ReadTable(r io.Reader, delimiter rune) (Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, errors.New("read header: empty input")
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]struct{}, len(header))
	for _, col := range header {
		if _, dup := seen[col]; dup {
			return Table{}, fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = struct{}{}
	}

	t := Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return Table{}, fmt.Errorf("line %d: row has %d columns, header has %d", line, len(rec), len(header))
		}
		t.Rows = append(t.Rows, NewRow(header, rec))
	}
}

// ReadTableFile opens path and reads it with ReadTable.
func ReadTableFile(path string, delimiter rune) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadTable(f, delimiter)
}

// WriteTable writes header followed by one record per row, in slice order.
func WriteTable(w io.Writer, delimiter rune, header []string, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Values(header)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileWriter replaces a table file with a complete snapshot on every write.
type FileWriter struct {
	Path      string
	Delimiter rune
}

// WriteSnapshot atomically replaces the file at Path with header and rows.
func (fw FileWriter) WriteSnapshot(header []string, rows []Row) error {
	return WriteFileAtomic(fw.Path, func(w io.Writer) error {
		return WriteTable(w, fw.Delimiter, header, rows)
	})
}

// ReadPayloads loads a previously written output table and maps each identifier
// to its non-empty value in payloadCol.
//
// A missing file yields an empty map. Rows with an empty identifier or payload are ignored.
func ReadPayloads(path string, delimiter rune, idCol, payloadCol string) (map[string]string, error) {
	t, err := ReadTableFile(path, delimiter)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	idName, ok := FindColumn(t.Header, idCol)
	if !ok {
		return nil, fmt.Errorf("missing required column %q", idCol)
	}
	payloadName, ok := FindColumn(t.Header, payloadCol)
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(t.Rows))
	for _, r := range t.Rows {
		id := strings.TrimSpace(r.Value(idName))
		payload := r.Value(payloadName)
		if id == "" || strings.TrimSpace(payload) == "" {
			continue
		}
		out[id] = payload
	}
	return out, nil
}

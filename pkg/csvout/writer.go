// Package csvout renders a ResultSet as CSV for the dashboard.
package csvout

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/permits-export/pkg/record"
)

// utf8BOM lets spreadsheet tools detect UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options controls CSV output.
type Options struct {
	// BOM prefixes the file with a UTF-8 byte order mark
	BOM bool
}

// Writer serializes result sets to CSV files.
type Writer struct {
	opts Options
}

// NewWriter creates a new CSV writer.
func NewWriter(opts Options) *Writer {
	return &Writer{opts: opts}
}

// Encode writes rs to w: a header row of rs.Columns(), then one row per
// record with empty cells for fields the record lacks.
func Encode(w io.Writer, rs record.ResultSet) error {
	cols := rs.Columns()
	cw := csv.NewWriter(w)

	if len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := make([]string, len(cols))
	for i, r := range rs {
		for j, col := range cols {
			v, _ := r.Get(col)
			row[j] = v
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteTo encodes rs to w, honoring the writer's options.
func (wr *Writer) WriteTo(w io.Writer, rs record.ResultSet) error {
	if wr.opts.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}
	return Encode(w, rs)
}

// WriteFile replaces path with the CSV rendering of rs. The data is written to
// a temporary file in the same directory and renamed into place, so path is
// either the previous file or the complete new one.
func (wr *Writer) WriteFile(path string, rs record.ResultSet) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err := wr.WriteTo(buf, rs); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

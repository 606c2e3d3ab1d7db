// Package export writes pipeline records to their destination.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dbradf/evg-patch-history/pkg/logging"
	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/rs/zerolog"
)

// Stdout is the destination name that writes to standard output.
const Stdout = "-"

// CSVWriter writes records as CSV with a header row. A file destination
// is written to a temporary file in the same directory and renamed into
// place, so an interrupted write leaves no partial file.
type CSVWriter struct {
	path   string
	stdout io.Writer
	logger zerolog.Logger
}

// NewCSVWriter creates a writer for path, or for standard output when
// path is Stdout.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{
		path:   path,
		stdout: os.Stdout,
		logger: logging.NewLogger("export"),
	}
}

// Path returns the destination.
func (w *CSVWriter) Path() string {
	return w.path
}

// WriteRecords writes the header and one row per record.
func (w *CSVWriter) WriteRecords(ctx context.Context, records []patch.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if w.path == Stdout {
		return encode(w.stdout, records)
	}

	if err := atomicWrite(w.path, records); err != nil {
		return err
	}

	w.logger.Info().
		Str("path", w.path).
		Int("records", len(records)).
		Msg("Wrote CSV export")
	return nil
}

// encode writes the CSV document to out.
func encode(out io.Writer, records []patch.Record) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(patch.RecordHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func atomicWrite(path string, records []patch.Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".evg-patch-history-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// No-op once the rename succeeded
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := encode(tmp, records); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

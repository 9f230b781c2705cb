package artifact

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"dtfcapture/internal/flow"
	"dtfcapture/internal/series"
)

type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns {dir}/{yyyyMMdd}/{flowId}.csv.
func (s *FileStore) Path(fc flow.Context) string {
	return filepath.Join(s.dir, fc.CaptureDate.Format(dirLayout), FileName(fc))
}

func (s *FileStore) Create(_ context.Context, fc flow.Context) (Writer, error) {
	target := s.Path(fc)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	buf := bufio.NewWriter(tmp)
	return &fileWriter{file: tmp, buf: buf, csv: csv.NewWriter(buf), target: target}, nil
}

func (s *FileStore) Exists(_ context.Context, fc flow.Context) (bool, error) {
	_, err := os.Stat(s.Path(fc))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact: %w", err)
}

func (s *FileStore) Open(_ context.Context, fc flow.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(fc))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// Read streams the artifact rows in file order. A malformed row aborts the read.
func (s *FileStore) Read(ctx context.Context, fc flow.Context, fn func(series.Observation) error) error {
	f, err := s.Open(ctx, fc)
	if err != nil {
		return err
	}
	defer f.Close()

	return ReadCSV(ctx, f, fn)
}

func ReadCSV(ctx context.Context, r io.Reader, fn func(series.Observation) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read artifact line %d: %w", line, err)
		}

		o, err := parseRecord(record)
		if err != nil {
			return fmt.Errorf("invalid artifact line %d: %w", line, err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
}

func parseRecord(record []string) (series.Observation, error) {
	if len(record) != 2 {
		return series.Observation{}, fmt.Errorf("expected 2 fields, got %d", len(record))
	}

	date, err := flow.ParseDate(record[0])
	if err != nil {
		return series.Observation{}, fmt.Errorf("invalid date %q", record[0])
	}
	value, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return series.Observation{}, fmt.Errorf("invalid value %q", record[1])
	}
	return series.Observation{Date: date, Value: value}, nil
}

type fileWriter struct {
	file   *os.File
	buf    *bufio.Writer
	csv    *csv.Writer
	target string
	done   bool
}

func (w *fileWriter) Append(o series.Observation) error {
	if err := w.csv.Write([]string{o.Date.Format(flow.DateLayout), o.Value.String()}); err != nil {
		return fmt.Errorf("failed to write artifact row: %w", err)
	}
	return nil
}

// Commit flushes the temp file and renames it over the target path.
func (w *fileWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true

	w.csv.Flush()
	err := w.csv.Error()
	if err == nil {
		err = w.buf.Flush()
	}
	if err == nil {
		err = w.file.Sync()
	}
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to flush artifact: %w", err)
	}

	if err := os.Rename(w.file.Name(), w.target); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	return nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial artifact: %w", err)
	}
	return nil
}

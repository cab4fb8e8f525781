// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
)

// Recorder appends every sample of a session to a new CSV file
type Recorder struct {
	logger *slog.Logger
	dir    string

	path string
	file *os.File
	csvw *csv.Writer
	enc  *csvutil.Encoder
	rows int

	// writer wraps the created file; tests replace it to fail writes
	writer func(*os.File) io.Writer
}

var _ sampler.Recorder = (*Recorder)(nil)

type Opts struct {
	logger *slog.Logger
	dir    string
}

// DefaultOpts returns a new Opts writing to the working directory
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		dir:    ".",
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Recorder
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithDir sets the directory log files are created in
func WithDir(dir string) OptionFn {
	return func(o *Opts) {
		o.dir = dir
	}
}

// NewRecorder creates a CSV Recorder; the file is created on Open
func NewRecorder(applyOpts ...OptionFn) *Recorder {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Recorder{
		logger: opts.logger.With("service", "csv"),
		dir:    opts.dir,
		writer: func(f *os.File) io.Writer { return f },
	}
}

func (r *Recorder) Name() string {
	return "csv"
}

// Path returns the path of the log file; it is empty until Open succeeds
func (r *Recorder) Path() string {
	return r.path
}

// Open creates the log file and writes the header. An existing file is
// never overwritten.
func (r *Recorder) Open(s sampler.Session) error {
	if r.file != nil {
		return fmt.Errorf("log file %s is already open", r.path)
	}

	path := filepath.Join(r.dir, FileName(s.Start))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}

	csvw := csv.NewWriter(r.writer(f))
	enc := csvutil.NewEncoder(csvw)
	if err := enc.EncodeHeader(row{}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &IOError{Op: "write header to", Path: path, Err: err}
	}
	enc.AutoHeader = false

	csvw.Flush()
	if err := csvw.Error(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &IOError{Op: "write header to", Path: path, Err: err}
	}

	r.path, r.file, r.csvw, r.enc, r.rows = path, f, csvw, enc, 0
	r.logger.Info("Logging to file", "path", path)
	return nil
}

// Record appends one row and flushes it to the file
func (r *Recorder) Record(s sampler.Sample) error {
	if r.file == nil {
		return errors.New("log file is not open")
	}

	if err := r.enc.Encode(toRow(s)); err != nil {
		return &IOError{Op: "encode row to", Path: r.path, Err: err}
	}
	r.csvw.Flush()
	if err := r.csvw.Error(); err != nil {
		return &IOError{Op: "write to", Path: r.path, Err: err}
	}
	r.rows++
	return nil
}

// Close flushes and closes the log file
func (r *Recorder) Close(_ sampler.Session) error {
	if r.file == nil {
		return nil
	}

	r.csvw.Flush()
	flushErr := r.csvw.Error()
	closeErr := r.file.Close()
	r.file = nil

	if err := errors.Join(flushErr, closeErr); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	r.logger.Info("Log file closed", "path", r.path, "rows", r.rows)
	return nil
}

// ReadLog decodes a log written by Recorder
func ReadLog(in io.Reader) ([]sampler.Sample, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(in))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("log is empty: missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	dec.DisallowMissingColumns = true

	var samples []sampler.Sample
	for line := 2; ; line++ {
		var r row
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return samples, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, r.sample())
	}
	return samples, nil
}

// ReadFile decodes the log at path
func ReadFile(path string) ([]sampler.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	return ReadLog(f)
}

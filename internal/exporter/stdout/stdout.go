// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
	"github.com/sustainable-computing-io/pmic-logger/internal/stats"
)

// Exporter prints a summary of the session to stdout once it ends
type Exporter struct {
	logger *slog.Logger
	out    io.Writer

	mu      sync.Mutex
	summary stats.Summary
}

var _ sampler.Recorder = (*Exporter)(nil)

type Opts struct {
	logger *slog.Logger
	out    io.Writer
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		out:    os.Stdout,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.Writer) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger: opts.logger.With("service", "stdout"),
		out:    opts.out,
	}
}

func (e *Exporter) Name() string {
	return "stdout"
}

func (e *Exporter) Open(s sampler.Session) error {
	e.mu.Lock()
	e.summary = stats.Summary{}
	e.mu.Unlock()

	_, err := fmt.Fprintf(e.out, "Measuring energy for %s every %s...\n", s.Duration, s.Interval)
	return err
}

func (e *Exporter) Record(sample sampler.Sample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary.Add(sample)
	return nil
}

// Close prints the summary table followed by the session total
func (e *Exporter) Close(s sampler.Session) error {
	e.mu.Lock()
	summary := e.summary
	e.mu.Unlock()

	if err := WriteSummary(e.out, summary); err != nil {
		e.logger.Error("Failed to write summary", "error", err)
		return err
	}

	_, err := fmt.Fprintf(e.out, "Session %s! Total energy used: %.2f J = %.6f Wh\n",
		s.State, s.Energy, s.WattHours())
	return err
}

// WriteSummary renders s as two tables: per quantity statistics and totals
func WriteSummary(out io.Writer, s stats.Summary) error {
	ranges := [][]string{
		rangeRow("Voltage (V)", s.Voltage),
		rangeRow("Current (A)", s.Current),
		rangeRow("Power (W)", s.Power),
	}
	table := newTable(out)
	table.Header([]string{"Quantity", "Min", "Mean", "Max"})
	if err := table.Bulk(ranges); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	totals := newTable(out)
	totals.Header([]string{"Samples", "Span", "Energy (J)", "Energy"})
	if err := totals.Append([]string{
		humanize.Comma(int64(s.Samples)),
		s.Span().String(),
		fmt.Sprintf("%.2f", s.Energy),
		siWattHours(s.WattHours()),
	}); err != nil {
		return err
	}
	return totals.Render()
}

func newTable(out io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header.Formatting.AutoFormat = tw.Off
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	return table
}

// siWattHours renders wh with an SI prefix and three rounded decimals
func siWattHours(wh float64) string {
	v, prefix := humanize.ComputeSI(wh)
	return strconv.FormatFloat(v, 'f', 3, 64) + " " + prefix + "Wh"
}

func rangeRow(name string, r stats.Range) []string {
	return []string{
		name,
		fmt.Sprintf("%.3f", r.Min),
		fmt.Sprintf("%.3f", r.Mean),
		fmt.Sprintf("%.3f", r.Max),
	}
}

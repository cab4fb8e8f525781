// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultCommand = "vcgencmd"
	// maxStderr bounds the stderr text carried by ExternalToolError
	maxStderr = 512
)

var DefaultArgs = []string{"pmic_read_adc"}

// CommandReader reads ADC channels by running an external command with the
// channel name appended to its arguments, e.g. `vcgencmd pmic_read_adc vbus`
type CommandReader struct {
	logger  *slog.Logger
	command string
	args    []string
	timeout time.Duration
}

var _ ADCReader = (*CommandReader)(nil)

// CommandOptFn is a functional option for configuring CommandReader
type CommandOptFn func(*CommandReader)

// WithCommand sets the command and its leading arguments
func WithCommand(command string, args ...string) CommandOptFn {
	return func(r *CommandReader) {
		r.command = command
		r.args = append([]string{}, args...)
	}
}

// WithTimeout bounds a single invocation; zero disables the bound
func WithTimeout(d time.Duration) CommandOptFn {
	return func(r *CommandReader) {
		r.timeout = d
	}
}

// WithCommandLogger sets the logger of the reader
func WithCommandLogger(logger *slog.Logger) CommandOptFn {
	return func(r *CommandReader) {
		r.logger = logger
	}
}

// NewCommandReader creates a reader running `vcgencmd pmic_read_adc <channel>` unless configured otherwise
func NewCommandReader(opts ...CommandOptFn) *CommandReader {
	r := &CommandReader{
		logger:  slog.Default(),
		command: DefaultCommand,
		args:    append([]string{}, DefaultArgs...),
	}
	for _, apply := range opts {
		apply(r)
	}
	r.logger = r.logger.With("reader", r.Name())
	return r
}

func (r *CommandReader) Name() string {
	return "command"
}

// Init checks that the command can be found
func (r *CommandReader) Init() error {
	path, err := exec.LookPath(r.command)
	if err != nil {
		return &ExternalToolError{Command: r.command, Err: err}
	}
	r.logger.Debug("reader command resolved", "path", path)
	return nil
}

func (r *CommandReader) Read(ctx context.Context, ch Channel) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.args...), ch.String())
	cmd := exec.CommandContext(ctx, r.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	r.logger.Debug("reader command finished",
		"channel", ch, "duration", time.Since(started), "error", err)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return "", &ExternalToolError{
			Channel: ch,
			Command: r.command,
			Stderr:  truncate(strings.TrimSpace(stderr.String()), maxStderr),
			Err:     err,
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

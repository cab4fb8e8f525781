// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Channel identifies a PMIC ADC channel
type Channel string

const (
	// VBus is the bus voltage channel; its register holds millivolts
	VBus Channel = "vbus"
	// IBus is the bus current channel; its register holds milliamps
	IBus Channel = "ibus"
)

// Channels lists the channels read on every tick, in read order
var Channels = []Channel{VBus, IBus}

func (c Channel) String() string {
	return string(c)
}

// ADCReader reads one raw ADC channel and returns the text produced by the
// underlying tool. The text must contain a 0x-prefixed hexadecimal register value.
type ADCReader interface {
	// Name returns a string identifying the reader
	Name() string

	// Read returns the raw output for the given channel
	Read(ctx context.Context, ch Channel) (string, error)
}

// milliScale converts a register value in milli-units (mV, mA) to base units
const milliScale = 1000.0

var registerPattern = regexp.MustCompile(`\b0[xX]([0-9a-fA-F]+)\b`)

// ParseRegister extracts the first 0x-prefixed hexadecimal token of out
func ParseRegister(ch Channel, out string) (uint64, error) {
	m := registerPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, &MalformedReadingError{Channel: ch, Output: out}
	}

	v, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0, &MalformedReadingError{Channel: ch, Output: out, Err: err}
	}
	return v, nil
}

// Measure reads ch from r and converts the register value from milli-units
// to volts (vbus) or amps (ibus)
func Measure(ctx context.Context, r ADCReader, ch Channel) (float64, error) {
	out, err := r.Read(ctx, ch)
	if err != nil {
		return 0, err
	}

	raw, err := ParseRegister(ch, out)
	if err != nil {
		return 0, err
	}
	return float64(raw) / milliScale, nil
}

// ExternalToolError reports that the reader tool could not be run or exited
// with a failure
type ExternalToolError struct {
	Channel Channel
	Command string
	Stderr  string
	Err     error
}

func (e *ExternalToolError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "external tool %q failed", e.Command)
	if e.Channel != "" {
		fmt.Fprintf(&sb, " reading %s", e.Channel)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&sb, ": %s", e.Stderr)
	}
	return sb.String()
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// MalformedReadingError reports reader output without a valid hexadecimal register
type MalformedReadingError struct {
	Channel Channel
	Output  string
	Err     error
}

func (e *MalformedReadingError) Error() string {
	msg := fmt.Sprintf("malformed %s reading %q: expected a 0x-prefixed hexadecimal value", e.Channel, e.Output)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedReadingError) Unwrap() error {
	return e.Err
}

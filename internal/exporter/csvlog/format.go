// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package csvlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
)

const (
	// TimestampLayout is ISO-8601 in local time with second precision
	TimestampLayout = "2006-01-02T15:04:05"

	fileNameLayout = "20060102_150405"
	filePrefix     = "energy_log_"
	fileExt        = ".csv"
)

// FileName returns the log file name for a session started at start
func FileName(start time.Time) string {
	return filePrefix + start.Local().Format(fileNameLayout) + fileExt
}

// row is one line of the log. Column order follows field order.
type row struct {
	Timestamp timestamp `csv:"Timestamp"`
	Voltage   decimal3  `csv:"Voltage (V)"`
	Current   decimal3  `csv:"Current (A)"`
	Power     decimal3  `csv:"Power (W)"`
	Energy    decimal2  `csv:"Energy So Far (Joules)"`
}

func toRow(s sampler.Sample) row {
	return row{
		Timestamp: timestamp(s.Timestamp),
		Voltage:   decimal3(s.Voltage),
		Current:   decimal3(s.Current),
		Power:     decimal3(s.Power),
		Energy:    decimal2(s.Energy),
	}
}

func (r row) sample() sampler.Sample {
	return sampler.Sample{
		Timestamp: time.Time(r.Timestamp),
		Voltage:   float64(r.Voltage),
		Current:   float64(r.Current),
		Power:     float64(r.Power),
		Energy:    float64(r.Energy),
	}
}

type timestamp time.Time

func (t timestamp) MarshalText() ([]byte, error) {
	return []byte(time.Time(t).Local().Format(TimestampLayout)), nil
}

func (t *timestamp) UnmarshalText(b []byte) error {
	parsed, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(string(b)), time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", b, err)
	}
	*t = timestamp(parsed)
	return nil
}

// decimal3 is written with 3 decimal places
type decimal3 float64

func (d decimal3) MarshalText() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(d), 'f', 3, 64), nil
}

func (d *decimal3) UnmarshalText(b []byte) error {
	v, err := parseFloat(b)
	*d = decimal3(v)
	return err
}

// decimal2 is written with 2 decimal places
type decimal2 float64

func (d decimal2) MarshalText() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(d), 'f', 2, 64), nil
}

func (d *decimal2) UnmarshalText(b []byte) error {
	v, err := parseFloat(b)
	*d = decimal2(v)
	return err
}

func parseFloat(b []byte) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", b, err)
	}
	return v, nil
}

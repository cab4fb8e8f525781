// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package stats aggregates the samples of a session
package stats

import (
	"math"
	"time"

	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
)

// Range holds the min, mean and max of one measured quantity
type Range struct {
	Min  float64
	Mean float64
	Max  float64

	sum float64
}

func (r *Range) add(v float64, n int) {
	if n == 1 {
		r.Min, r.Max = v, v
	} else {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	r.sum += v
	r.Mean = r.sum / float64(n)
}

// Summary aggregates a sequence of samples
type Summary struct {
	Samples int
	First   time.Time
	Last    time.Time

	Voltage Range
	Current Range
	Power   Range

	// Energy is the accumulated energy of the last sample, in joules
	Energy float64
}

// Add folds one sample into the summary
func (s *Summary) Add(sample sampler.Sample) {
	s.Samples++
	if s.Samples == 1 {
		s.First = sample.Timestamp
	}
	s.Last = sample.Timestamp

	s.Voltage.add(sample.Voltage, s.Samples)
	s.Current.add(sample.Current, s.Samples)
	s.Power.add(sample.Power, s.Samples)
	s.Energy = sample.Energy
}

// Span returns the time between the first and the last sample
func (s Summary) Span() time.Duration {
	if s.Samples == 0 {
		return 0
	}
	return s.Last.Sub(s.First)
}

// WattHours returns Energy in Wh
func (s Summary) WattHours() float64 {
	return s.Energy / 3600
}

// Of summarizes samples
func Of(samples []sampler.Sample) Summary {
	var s Summary
	for _, sample := range samples {
		s.Add(sample)
	}
	return s
}

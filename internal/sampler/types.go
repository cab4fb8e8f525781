// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"time"
)

// State is the lifecycle state of a Session
type State int

const (
	NotStarted State = iota
	Running
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sample is one tick's measurement. It is immutable once recorded.
type Sample struct {
	Timestamp time.Time
	Voltage   float64 // volts
	Current   float64 // amps
	Power     float64 // watts
	Energy    float64 // joules accumulated since the session started, this sample included
}

// Session holds the state of one recording run
type Session struct {
	Start    time.Time
	Duration time.Duration // time budget
	Interval time.Duration // time between samples
	Energy   float64       // accumulated joules; never decreases
	Samples  int
	State    State
}

// WattHours returns the accumulated energy in Wh
func (s Session) WattHours() float64 {
	return s.Energy / 3600
}

// next returns the energy after adding a sample of the given power. Energy is
// integrated with rectangles of the configured interval width.
func (s Session) next(power float64) float64 {
	return s.Energy + power*s.Interval.Seconds()
}

// Recorder receives every sample of a session, in order
type Recorder interface {
	Name() string

	// Open is called once before the first tick
	Open(session Session) error

	Record(sample Sample) error

	// Close is called once the session ended, whether it finished or failed,
	// if Open succeeded
	Close(session Session) error
}

// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Ticking selects how the wait between two ticks is computed
type Ticking int

const (
	// FixedDelay waits the full interval after each tick, so processing
	// time makes timestamps drift
	FixedDelay Ticking = iota
	// Deadline schedules tick k at start + k*interval and subtracts the
	// processing time from the wait; late ticks run immediately
	Deadline
)

func (t Ticking) String() string {
	if t == Deadline {
		return "deadline"
	}
	return "fixed"
}

type Opts struct {
	logger   *slog.Logger
	clock    clock.Clock
	duration time.Duration
	interval time.Duration
	ticking  Ticking
}

// DefaultOpts returns a 5 minute session sampling every second
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		clock:    clock.RealClock{},
		duration: 5 * time.Minute,
		interval: 1 * time.Second,
		ticking:  FixedDelay,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Sampler
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used for timestamps and waits
func WithClock(c clock.Clock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithDuration sets the session time budget
func WithDuration(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.duration = d
	}
}

// WithInterval sets the time between two samples
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithTicking sets the tick scheduling mode
func WithTicking(t Ticking) OptionFn {
	return func(o *Opts) {
		o.ticking = t
	}
}

// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sustainable-computing-io/pmic-logger/internal/device"
	"github.com/sustainable-computing-io/pmic-logger/internal/service"
	"k8s.io/utils/clock"
)

// Sampler polls the PMIC for bus voltage and current at a fixed interval,
// derives power and energy and hands every sample to its recorders until
// the session's time budget is used up.
type Sampler struct {
	logger    *slog.Logger
	reader    device.ADCReader
	recorders []Recorder

	clock    clock.Clock
	duration time.Duration
	interval time.Duration
	ticking  Ticking

	mu      sync.RWMutex
	session Session
}

var (
	_ service.Initializer = (*Sampler)(nil)
	_ service.Runner      = (*Sampler)(nil)
)

// NewSampler creates a Sampler reading from reader and writing to recorders in order
func NewSampler(reader device.ADCReader, recorders []Recorder, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Sampler{
		logger:    opts.logger.With("service", "sampler"),
		reader:    reader,
		recorders: recorders,
		clock:     opts.clock,
		duration:  opts.duration,
		interval:  opts.interval,
		ticking:   opts.ticking,
	}
}

func (s *Sampler) Name() string {
	return "sampler"
}

// Init validates the session parameters and initializes the reader when it
// needs initialization
func (s *Sampler) Init() error {
	if s.duration <= 0 {
		return fmt.Errorf("session duration must be positive, got %s", s.duration)
	}
	if s.interval <= 0 {
		return fmt.Errorf("session interval must be positive, got %s", s.interval)
	}

	if r, ok := s.reader.(interface{ Init() error }); ok {
		if err := r.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s reader: %w", s.reader.Name(), err)
		}
	}
	return nil
}

// Session returns a copy of the current session
func (s *Sampler) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Sampler) publish(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// Run records one session. It returns nil once the duration has elapsed or
// ctx is cancelled, and the first error otherwise. Rows already recorded are
// kept in either case.
func (s *Sampler) Run(ctx context.Context) error {
	sess := Session{
		Start:    s.clock.Now(),
		Duration: s.duration,
		Interval: s.interval,
		State:    NotStarted,
	}
	s.publish(sess)

	s.logger.Info("Measuring energy",
		"duration", s.duration, "interval", s.interval, "ticking", s.ticking, "reader", s.reader.Name())

	opened, err := s.open(sess)
	if err != nil {
		sess.State = Failed
		s.publish(sess)
		return errors.Join(err, s.close(opened, sess))
	}

	err = s.loop(ctx, &sess)
	if err != nil {
		sess.State = Failed
	} else {
		sess.State = Finished
	}
	s.publish(sess)

	if closeErr := s.close(opened, sess); closeErr != nil {
		err = errors.Join(err, closeErr)
		sess.State = Failed
		s.publish(sess)
	}

	if err != nil {
		s.logger.Error("Session failed", "samples", sess.Samples, "energy", sess.Energy, "error", err)
		return err
	}

	s.logger.Info("Session finished",
		"samples", sess.Samples,
		"energy_joules", sess.Energy,
		"energy_wh", sess.WattHours(),
		"elapsed", s.clock.Since(sess.Start))
	return nil
}

func (s *Sampler) open(sess Session) ([]Recorder, error) {
	opened := make([]Recorder, 0, len(s.recorders))
	for _, r := range s.recorders {
		if err := r.Open(sess); err != nil {
			return opened, fmt.Errorf("failed to open recorder %s: %w", r.Name(), err)
		}
		opened = append(opened, r)
	}
	return opened, nil
}

func (s *Sampler) close(recorders []Recorder, sess Session) error {
	var errs error
	for _, r := range recorders {
		if err := r.Close(sess); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close recorder %s: %w", r.Name(), err))
		}
	}
	return errs
}

// interrupted reports whether err is the result of ctx being cancelled: either
// ctx's own error or the reader command killed with it
func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	var toolErr *device.ExternalToolError
	return errors.Is(err, ctx.Err()) || errors.As(err, &toolErr)
}

// loop runs ticks until the budget is spent, ctx is done or a tick fails
func (s *Sampler) loop(ctx context.Context, sess *Session) error {
	sess.State = Running
	s.publish(*sess)

	for tick := 1; s.clock.Since(sess.Start) < sess.Duration; tick++ {
		started := s.clock.Now()
		if err := s.tick(ctx, sess); err != nil {
			if interrupted(ctx, err) {
				s.logger.Info("Session interrupted during a reading", "tick", tick)
				return nil
			}
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		s.publish(*sess)

		if !s.wait(ctx, s.nextWait(sess, tick, started)) {
			s.logger.Info("Session interrupted", "samples", sess.Samples)
			return nil
		}
	}
	return nil
}

// tick takes and records one sample; the session is updated only when every
// recorder accepted it
func (s *Sampler) tick(ctx context.Context, sess *Session) error {
	volts, err := device.Measure(ctx, s.reader, device.VBus)
	if err != nil {
		return err
	}
	amps, err := device.Measure(ctx, s.reader, device.IBus)
	if err != nil {
		return err
	}

	power := volts * amps
	sample := Sample{
		Timestamp: s.clock.Now(),
		Voltage:   volts,
		Current:   amps,
		Power:     power,
		Energy:    sess.next(power),
	}

	for _, r := range s.recorders {
		if err := r.Record(sample); err != nil {
			return fmt.Errorf("recorder %s: %w", r.Name(), err)
		}
	}

	sess.Energy = sample.Energy
	sess.Samples++
	s.logger.Debug("sample recorded",
		"voltage", sample.Voltage, "current", sample.Current,
		"power", sample.Power, "energy", sample.Energy)
	return nil
}

// nextWait returns how long to wait before the tick after tick. The wait
// never extends past the end of the session.
func (s *Sampler) nextWait(sess *Session, tick int, started time.Time) time.Duration {
	now := s.clock.Now()
	var wait time.Duration
	switch s.ticking {
	case Deadline:
		next := sess.Start.Add(time.Duration(tick) * sess.Interval)
		wait = next.Sub(now)
		if wait < 0 {
			s.logger.Warn("tick overran its interval", "tick", tick, "took", now.Sub(started))
		}
	default:
		wait = sess.Interval
	}

	remaining := sess.Start.Add(sess.Duration).Sub(now)
	return min(wait, remaining)
}

// wait blocks for d on the sampler's clock; it returns false if ctx is done first
func (s *Sampler) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return ctx.Err() == nil
	}
}

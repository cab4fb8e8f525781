// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// NOTE: The fake reader is not intended to be used in production. It lets the
// logger run on machines without a PMIC.

// FakeReader returns fixed register values, optionally with random jitter
type FakeReader struct {
	mu        sync.Mutex
	registers map[Channel]uint64
	jitter    float64
	rnd       *rand.Rand
}

var _ ADCReader = (*FakeReader)(nil)

// FakeOptFn is a functional option for configuring FakeReader
type FakeOptFn func(*FakeReader)

// WithFakeRegister sets the register value returned for ch, in milli-units
func WithFakeRegister(ch Channel, value uint64) FakeOptFn {
	return func(r *FakeReader) {
		r.registers[ch] = value
	}
}

// WithFakeJitter adds up to ±factor relative noise to every reading
func WithFakeJitter(factor float64) FakeOptFn {
	return func(r *FakeReader) {
		r.jitter = factor
	}
}

// WithFakeSeed makes the jitter reproducible
func WithFakeSeed(seed int64) FakeOptFn {
	return func(r *FakeReader) {
		r.rnd = rand.New(rand.NewSource(seed))
	}
}

// NewFakeReader returns a reader reporting 5.1 V and 1 A unless configured otherwise
func NewFakeReader(opts ...FakeOptFn) *FakeReader {
	r := &FakeReader{
		registers: map[Channel]uint64{
			VBus: 5100,
			IBus: 1000,
		},
		rnd: rand.New(rand.NewSource(rand.Int63())),
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

func (r *FakeReader) Name() string {
	return "fake"
}

func (r *FakeReader) Read(_ context.Context, ch Channel) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.registers[ch]
	if !ok {
		return "", &ExternalToolError{Channel: ch, Command: r.Name(), Err: fmt.Errorf("unknown channel")}
	}

	if r.jitter > 0 {
		noise := (r.rnd.Float64()*2 - 1) * r.jitter * float64(v)
		v = uint64(max(0, float64(v)+noise))
	}
	return fmt.Sprintf("0x%08X", v), nil
}

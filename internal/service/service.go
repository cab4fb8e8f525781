// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is a named component managed by Init and Run
type Service interface {
	Name() string
}

// Initializer is implemented by services that must prepare resources before running
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that block while doing their work.
// Run returns when the work is done or ctx is cancelled.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services that hold resources to release
type Shutdowner interface {
	Service
	Shutdown() error
}

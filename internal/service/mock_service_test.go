// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// mockService implements only Service
type mockService struct {
	name string
}

func (m *mockService) Name() string {
	return m.name
}

// callLog records the order in which lifecycle methods are called across services
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	if l != nil {
		l.calls = append(l.calls, call)
	}
}

// mockLifecycle implements Initializer, Runner and Shutdowner
type mockLifecycle struct {
	mockService
	log *callLog

	initFn     func() error
	runFn      func(ctx context.Context) error
	shutdownFn func() error

	initCount     int
	runCount      int
	shutdownCount int
}

func (m *mockLifecycle) Init() error {
	m.initCount++
	m.log.add("init:" + m.name)
	if m.initFn != nil {
		return m.initFn()
	}
	return nil
}

func (m *mockLifecycle) Run(ctx context.Context) error {
	m.runCount++
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

func (m *mockLifecycle) Shutdown() error {
	m.shutdownCount++
	m.log.add("shutdown:" + m.name)
	if m.shutdownFn != nil {
		return m.shutdownFn()
	}
	return nil
}

// mockRunner implements Runner only
type mockRunner struct {
	mockService
	runFn    func(ctx context.Context) error
	runCount int
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.runCount++
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

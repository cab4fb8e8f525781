// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"
)

// Init initializes services in order. When one fails, the services already
// initialized are shut down in reverse order and the failure is returned.
func Init(logger *slog.Logger, services []Service) error {
	logger = orDefault(logger)

	done := make([]Service, 0, len(services))
	for _, s := range services {
		initializer, ok := s.(Initializer)
		if !ok {
			logger.Debug("service has nothing to initialize", "service", s.Name())
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := initializer.Init(); err != nil {
			rollback(logger, done)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}
		done = append(done, s)
	}
	return nil
}

func rollback(logger *slog.Logger, initialized []Service) {
	for i := len(initialized) - 1; i >= 0; i-- {
		s := initialized[i]
		shutdowner, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		if err := shutdowner.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", s.Name(), "error", err)
			continue
		}
		logger.Debug("service shut down after failed init", "service", s.Name())
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

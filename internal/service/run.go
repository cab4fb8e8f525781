// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs every Runner in its own actor of a run group. The first service
// to return stops all others, and its error is the result of Run. Services
// implementing Shutdowner are shut down once their actor is interrupted.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	logger = orDefault(logger)

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			logger.Debug("service does not run", "service", s.Name())
			continue
		}

		svc := s
		g.Add(
			func() error {
				logger.Info("Running service", "service", svc.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", svc.Name(), "reason", err)
				}
				shutdown(logger, svc)
			},
		)
	}

	return g.Run()
}

func shutdown(logger *slog.Logger, s Service) {
	shutdowner, ok := s.(Shutdowner)
	if !ok {
		return
	}
	logger.Info("shutting down", "service", s.Name())
	if err := shutdowner.Shutdown(); err != nil {
		logger.Warn("service shutdown failed with error", "service", s.Name(), "error", err)
	}
}

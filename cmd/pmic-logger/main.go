// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sustainable-computing-io/pmic-logger/config"
	"github.com/sustainable-computing-io/pmic-logger/internal/device"
	"github.com/sustainable-computing-io/pmic-logger/internal/exporter/csvlog"
	"github.com/sustainable-computing-io/pmic-logger/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/pmic-logger/internal/exporter/prometheus/collector"
	"github.com/sustainable-computing-io/pmic-logger/internal/exporter/stdout"
	"github.com/sustainable-computing-io/pmic-logger/internal/logger"
	"github.com/sustainable-computing-io/pmic-logger/internal/sampler"
	"github.com/sustainable-computing-io/pmic-logger/internal/server"
	"github.com/sustainable-computing-io/pmic-logger/internal/service"
	"github.com/sustainable-computing-io/pmic-logger/internal/stats"
	"github.com/sustainable-computing-io/pmic-logger/internal/version"
	"k8s.io/utils/ptr"
)

const (
	recordCommand  = "record"
	summaryCommand = "summary"
)

// invocation is the result of parsing the command line
type invocation struct {
	command     string
	cfg         *config.Config
	summaryFile string
}

func main() {
	inv, err := parseArgsAndConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if inv.command == summaryCommand {
		if err := printSummary(os.Stdout, inv.summaryFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg := inv.cfg
	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	services := createServices(logger, cfg, os.Stdout)
	if err := service.Init(logger, services); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("PMIC logger terminated with an error", "error", err)
		os.Exit(1)
	}

	logger.Info("Graceful shutdown completed")
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("PMIC logger version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig(args []string) (*invocation, error) {
	const appName = "pmic-logger"
	app := kingpin.New(appName, "Log PMIC bus voltage, current, power and energy to a CSV file.")
	app.Version(version.Info().String())
	app.HelpFlag.Short('h')

	configFiles := app.Flag("config.file", "Path to YAML configuration file; repeat to layer files").Strings()
	updateConfig := config.RegisterFlags(app)

	app.Command(recordCommand, "Record a session (default)").Default()
	summary := app.Command(summaryCommand, "Print statistics of a recorded energy log")
	summaryFile := summary.Arg("file", "Energy log written by record").Required().String()

	command, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	if command == summaryCommand {
		return &invocation{command: command, summaryFile: *summaryFile}, nil
	}

	logger := logger.New("info", "text", os.Stderr)
	cfg := config.DefaultConfig()
	if len(*configFiles) > 0 {
		logger.Info("Loading configuration files", "paths", *configFiles)
		loadedCfg, err := config.FromFiles(*configFiles...)
		if err != nil {
			logger.Error("Error loading config file", "error", err.Error())
			return nil, err
		}
		cfg = loadedCfg
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return &invocation{command: recordCommand, cfg: cfg}, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(os.Stderr, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createReader(logger *slog.Logger, cfg *config.Config) device.ADCReader {
	if fake := cfg.Dev.FakeReader; ptr.Deref(fake.Enabled, false) {
		logger.Warn("Using fake PMIC reader")
		return device.NewFakeReader(
			device.WithFakeRegister(device.VBus, fake.VBus),
			device.WithFakeRegister(device.IBus, fake.IBus),
			device.WithFakeJitter(fake.Jitter),
		)
	}

	return device.NewCommandReader(
		device.WithCommand(cfg.Reader.Command, cfg.Reader.Args...),
		device.WithTimeout(cfg.Reader.Timeout),
		device.WithCommandLogger(logger),
	)
}

func tickingFor(mode config.TickMode) sampler.Ticking {
	if mode == config.TickDeadline {
		return sampler.Deadline
	}
	return sampler.FixedDelay
}

// createServices wires the sampler to its recorders and, when enabled, the
// metrics endpoint. The sampler is the first service to run.
func createServices(logger *slog.Logger, cfg *config.Config, out io.Writer) []service.Service {
	logger.Debug("Creating all services")

	recorders := []sampler.Recorder{
		csvlog.NewRecorder(
			csvlog.WithLogger(logger),
			csvlog.WithDir(cfg.Session.OutputDir),
		),
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		recorders = append(recorders, stdout.NewExporter(
			stdout.WithLogger(logger),
			stdout.WithOutput(out),
		))
	}

	var power *collector.PowerCollector
	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		power = collector.NewPowerCollector(logger)
		recorders = append(recorders, power)
	}

	s := sampler.NewSampler(createReader(logger, cfg), recorders,
		sampler.WithLogger(logger),
		sampler.WithDuration(cfg.Session.Duration),
		sampler.WithInterval(cfg.Session.Interval),
		sampler.WithTicking(tickingFor(cfg.Session.Ticking)),
	)

	services := []service.Service{s}

	if power != nil {
		apiServer := server.NewAPIServer(
			server.WithLogger(logger),
			server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
		)
		promExporter := prometheus.NewExporter(apiServer,
			prometheus.WithLogger(logger),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithCollectors(prometheus.CreateCollectors(power)),
		)
		services = append(services,
			promExporter,
			server.NewProbe(apiServer, s),
			apiServer,
		)
	}

	services = append(services, service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM))
	return services
}

// printSummary prints statistics of the energy log at path
func printSummary(out io.Writer, path string) error {
	samples, err := csvlog.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read energy log: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("energy log %s has no samples", path)
	}

	if _, err := fmt.Fprintf(out, "%s\n", path); err != nil {
		return err
	}
	return stdout.WriteSummary(out, stats.Of(samples))
}

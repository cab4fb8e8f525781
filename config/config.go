// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// TickMode selects how the sampling loop waits between ticks
type TickMode string

const (
	// TickFixed sleeps the full interval after each tick
	TickFixed TickMode = "fixed"
	// TickDeadline schedules tick k at start + k*interval
	TickDeadline TickMode = "deadline"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// Session controls a single recording session
	Session struct {
		Duration  time.Duration `yaml:"duration"`  // total time budget of the session
		Interval  time.Duration `yaml:"interval"`  // time between two samples
		OutputDir string        `yaml:"outputDir"` // directory in which the energy log is created
		Ticking   TickMode      `yaml:"ticking"`
	}

	// Reader configures the external ADC reader command. The channel name
	// (vbus or ibus) is appended as the last argument.
	Reader struct {
		Command string        `yaml:"command"`
		Args    []string      `yaml:"args"`
		Timeout time.Duration `yaml:"timeout"` // 0 waits for the command indefinitely
	}

	// Exporter configuration
	StdoutExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeReader struct {
			Enabled *bool   `yaml:"enabled"`
			VBus    uint64  `yaml:"vbus"`   // millivolts
			IBus    uint64  `yaml:"ibus"`   // milliamps
			Jitter  float64 `yaml:"jitter"` // relative noise added to each reading, [0, 1)
		} `yaml:"fake-reader"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Session  Session  `yaml:"session"`
		Reader   Reader   `yaml:"reader"`
		Exporter Exporter `yaml:"exporter"`
		Web      Web      `yaml:"web"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	SessionDurationFlag  = "session.duration"
	SessionIntervalFlag  = "session.interval"
	SessionOutputDirFlag = "session.output-dir"
	SessionTickingFlag   = "session.ticking"

	ReaderCommandFlag = "reader.command"
	ReaderArgs        = "reader.args" // not a flag
	ReaderTimeoutFlag = "reader.timeout"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	// Exporters
	ExporterStdoutEnabledFlag = "exporter.stdout"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"

	// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

const DefaultPort = ":28283"

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Session: Session{
			Duration:  5 * time.Minute,
			Interval:  1 * time.Second,
			OutputDir: ".",
			Ticking:   TickFixed,
		},
		Reader: Reader{
			Command: "vcgencmd",
			Args:    []string{"pmic_read_adc"},
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled: ptr.To(true),
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(false),
				DebugCollectors: []string{"go"},
			},
		},
		Web: Web{
			ListenAddresses: []string{DefaultPort},
		},
	}

	cfg.Dev.FakeReader.Enabled = ptr.To(false)
	cfg.Dev.FakeReader.VBus = 5100
	cfg.Dev.FakeReader.IBus = 1000
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// FromFiles loads the first file and merges every following file on top of it
func FromFiles(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return DefaultConfig(), nil
	}

	cfg, err := FromFile(paths[0])
	if err != nil {
		return nil, err
	}

	b := (&Builder{}).Use(cfg)
	for _, p := range paths[1:] {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", p, err)
		}
		b.Merge(string(data))
	}

	merged, err := b.Build()
	if err != nil {
		return nil, err
	}
	merged.sanitize()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	// session
	duration := app.Flag(SessionDurationFlag, "Total duration of the recording session").Default("5m").Duration()
	interval := app.Flag(SessionIntervalFlag, "Interval between two samples").Default("1s").Duration()
	outputDir := app.Flag(SessionOutputDirFlag, "Directory in which the energy log is created").Default(".").String()
	ticking := app.Flag(SessionTickingFlag, "Tick scheduling: fixed (sleep interval after each sample) or deadline (subtract processing time)").
		Default(string(TickFixed)).Enum(string(TickFixed), string(TickDeadline))

	// reader
	readerCommand := app.Flag(ReaderCommandFlag, "Command used to read a PMIC ADC channel").Default("vcgencmd").String()
	readerTimeout := app.Flag(ReaderTimeoutFlag, "Timeout for a single reader invocation; 0 to disable").Default("0s").Duration()

	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultPort).Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Print a summary of the session on stdout").Default("true").Bool()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("false").Bool()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[SessionDurationFlag] {
			cfg.Session.Duration = *duration
		}
		if flagsSet[SessionIntervalFlag] {
			cfg.Session.Interval = *interval
		}
		if flagsSet[SessionOutputDirFlag] {
			cfg.Session.OutputDir = *outputDir
		}
		if flagsSet[SessionTickingFlag] {
			cfg.Session.Ticking = TickMode(*ticking)
		}

		if flagsSet[ReaderCommandFlag] {
			cfg.Reader.Command = *readerCommand
		}
		if flagsSet[ReaderTimeoutFlag] {
			cfg.Reader.Timeout = *readerTimeout
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}
		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Session.OutputDir = strings.TrimSpace(c.Session.OutputDir)
	c.Session.Ticking = TickMode(strings.TrimSpace(string(c.Session.Ticking)))
	c.Reader.Command = strings.TrimSpace(c.Reader.Command)
	for i := range c.Reader.Args {
		c.Reader.Args[i] = strings.TrimSpace(c.Reader.Args[i])
	}
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}
	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // session
		if c.Session.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("invalid session duration: %s must be positive", c.Session.Duration))
		}
		if c.Session.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid session interval: %s must be positive", c.Session.Interval))
		}
		if c.Session.Ticking != TickFixed && c.Session.Ticking != TickDeadline {
			errs = append(errs, fmt.Sprintf("invalid session ticking: %q", c.Session.Ticking))
		}
		if err := canWriteDir(c.Session.OutputDir); err != nil {
			errs = append(errs, fmt.Sprintf("invalid output dir: %s: %s", c.Session.OutputDir, err.Error()))
		}
	}
	{ // reader
		if !ptr.Deref(c.Dev.FakeReader.Enabled, false) && c.Reader.Command == "" {
			errs = append(errs, "reader command cannot be empty")
		}
		if c.Reader.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("invalid reader timeout: %s can't be negative", c.Reader.Timeout))
		}
	}
	{ // dev
		if j := c.Dev.FakeReader.Jitter; j < 0 || j >= 1 {
			errs = append(errs, fmt.Sprintf("invalid fake reader jitter: %v must be in [0, 1)", j))
		}
	}
	if ptr.Deref(c.Exporter.Prometheus.Enabled, false) {
		{ // Web config file
			if c.Web.Config != "" {
				if err := canReadFile(c.Web.Config); err != nil {
					errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
				}
			}
		}
		{ // Web listen addresses
			if len(c.Web.ListenAddresses) == 0 {
				errs = append(errs, "at least one web listen address must be specified")
			}
			for _, addr := range c.Web.ListenAddresses {
				if err := validateListenAddress(addr); err != nil {
					errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canWriteDir(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	return err
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{SessionDurationFlag, c.Session.Duration.String()},
		{SessionIntervalFlag, c.Session.Interval.String()},
		{SessionOutputDirFlag, c.Session.OutputDir},
		{SessionTickingFlag, string(c.Session.Ticking)},
		{ReaderCommandFlag, c.Reader.Command},
		{ReaderArgs, strings.Join(c.Reader.Args, " ")},
		{ReaderTimeoutFlag, c.Reader.Timeout.String()},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
		{WebConfigFlag, c.Web.Config},
		{WebListenAddressFlag, strings.Join(c.Web.ListenAddresses, ", ")},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}

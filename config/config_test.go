// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.Equal(t, 5*time.Minute, cfg.Session.Duration)
	assert.Equal(t, 1*time.Second, cfg.Session.Interval)
	assert.Equal(t, ".", cfg.Session.OutputDir)
	assert.Equal(t, TickFixed, cfg.Session.Ticking)

	assert.Equal(t, "vcgencmd", cfg.Reader.Command)
	assert.Equal(t, []string{"pmic_read_adc"}, cfg.Reader.Args)
	assert.Zero(t, cfg.Reader.Timeout)

	assert.True(t, *cfg.Exporter.Stdout.Enabled)
	assert.False(t, *cfg.Exporter.Prometheus.Enabled)
	assert.False(t, *cfg.Dev.FakeReader.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	yamlData := `
log:
  level: debug
  format: json
session:
  duration: 1m
  interval: 500ms
  ticking: deadline
reader:
  command: /opt/vc/bin/vcgencmd
  args: [pmic_read_adc]
  timeout: 2s
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Minute, cfg.Session.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.Interval)
	assert.Equal(t, TickDeadline, cfg.Session.Ticking)
	assert.Equal(t, "/opt/vc/bin/vcgencmd", cfg.Reader.Command)
	assert.Equal(t, 2*time.Second, cfg.Reader.Timeout)
}

func TestLoadEmptyFromYAML(t *testing.T) {
	cfg, err := Load(strings.NewReader(``))
	assert.NoError(t, err)

	defaultCfg := DefaultConfig()
	assert.Equal(t, defaultCfg.String(), cfg.String())
}

func TestPartialConfig(t *testing.T) {
	yamlData := `
session:
  duration: 10m
`
	cfg, err := Load(strings.NewReader(yamlData))
	assert.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Session.Duration)
	// Values not specified should use defaults
	assert.Equal(t, time.Second, cfg.Session.Interval)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestWhitespaceHandling(t *testing.T) {
	yamlData := `
log:
  level: "  debug  "
  format: "  json  "
session:
  ticking: " deadline "
reader:
  command: "  vcgencmd "
exporter:
  prometheus:
    debugCollectors: ["  go  ", "  process  "]
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, TickDeadline, cfg.Session.Ticking)
	assert.Equal(t, "vcgencmd", cfg.Reader.Command)
	assert.ElementsMatch(t, []string{"go", "process"}, cfg.Exporter.Prometheus.DebugCollectors)
}

func TestCommandLinePrecedence(t *testing.T) {
	yamlData := `
session:
  duration: 10m
  interval: 2s
exporter:
  stdout:
    enabled: false
`
	cfg, err := Load(strings.NewReader(yamlData))
	require.NoError(t, err)

	app := kingpin.New("test", "Test application")
	updateConfig := RegisterFlags(app)

	_, err = app.Parse([]string{
		"--session.duration=1m",
		"--exporter.stdout",
		"--session.ticking=deadline",
	})
	require.NoError(t, err)
	require.NoError(t, updateConfig(cfg))

	assert.Equal(t, time.Minute, cfg.Session.Duration, "duration should come from flag")
	assert.Equal(t, 2*time.Second, cfg.Session.Interval, "interval should remain from yaml")
	assert.Equal(t, TickDeadline, cfg.Session.Ticking)
	assert.True(t, *cfg.Exporter.Stdout.Enabled, "stdout exporter should be enabled from flag")
	assert.False(t, *cfg.Exporter.Prometheus.Enabled)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reader.Command = "/usr/local/bin/pmic"

	app := kingpin.New("test", "Test application")
	updateConfig := RegisterFlags(app)
	_, err := app.Parse([]string{"--log.level=debug"})
	require.NoError(t, err)
	require.NoError(t, updateConfig(cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/usr/local/bin/pmic", cfg.Reader.Command, "default flag value must not override config")
}

func TestFromRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestFromFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	overlay := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
session:
  duration: 10m
exporter:
  stdout:
    enabled: true
`), 0o600))
	require.NoError(t, os.WriteFile(overlay, []byte(`
session:
  interval: 250ms
exporter:
  stdout:
    enabled: false
`), 0o600))

	t.Run("no files", func(t *testing.T) {
		cfg, err := FromFiles()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().String(), cfg.String())
	})

	t.Run("overlay wins", func(t *testing.T) {
		cfg, err := FromFiles(base, overlay)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, cfg.Session.Duration)
		assert.Equal(t, 250*time.Millisecond, cfg.Session.Interval)
		assert.False(t, *cfg.Exporter.Stdout.Enabled)
	})

	t.Run("missing overlay", func(t *testing.T) {
		_, err := FromFiles(base, filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestInvalidYAML(t *testing.T) {
	yamlData := `
log:
  level: FATAL
invalid yaml
`
	_, err := Load(strings.NewReader(yamlData))
	assert.Error(t, err, "Loading invalid YAML should return an error")
}

func TestInvalidFile(t *testing.T) {
	_, err := FromFile("non_existent_file.yaml")
	assert.Error(t, err, "Loading from non-existent file should return an error")
}

// ErrorReader is a mock io.Reader that always returns an error
type ErrorReader struct{}

func (r *ErrorReader) Read(p []byte) (n int, err error) {
	return 0, os.ErrInvalid
}

func TestReadError(t *testing.T) {
	_, err := Load(&ErrorReader{})
	assert.Error(t, err, "Read error should propagate")
}

func TestInvalidConfigurationValues(t *testing.T) {
	tt := []struct {
		name   string
		modify func(*Config)
		error  string
	}{{
		name:   "default config",
		modify: func(*Config) {},
	}, {
		name:   "invalid log level",
		modify: func(c *Config) { c.Log.Level = "debg" },
		error:  "invalid log level",
	}, {
		name:   "invalid log format",
		modify: func(c *Config) { c.Log.Format = "jAson" },
		error:  "invalid log format",
	}, {
		name:   "zero duration",
		modify: func(c *Config) { c.Session.Duration = 0 },
		error:  "invalid session duration",
	}, {
		name:   "negative interval",
		modify: func(c *Config) { c.Session.Interval = -time.Second },
		error:  "invalid session interval",
	}, {
		name:   "unknown ticking",
		modify: func(c *Config) { c.Session.Ticking = "drift" },
		error:  "invalid session ticking",
	}, {
		name:   "missing output dir",
		modify: func(c *Config) { c.Session.OutputDir = "/this/does/not/exist" },
		error:  "invalid output dir",
	}, {
		name:   "empty reader command",
		modify: func(c *Config) { c.Reader.Command = "" },
		error:  "reader command cannot be empty",
	}, {
		name: "empty reader command with fake reader",
		modify: func(c *Config) {
			c.Reader.Command = ""
			c.Dev.FakeReader.Enabled = ptr.To(true)
		},
	}, {
		name:   "negative reader timeout",
		modify: func(c *Config) { c.Reader.Timeout = -time.Second },
		error:  "invalid reader timeout",
	}, {
		name:   "jitter out of range",
		modify: func(c *Config) { c.Dev.FakeReader.Jitter = 1.5 },
		error:  "invalid fake reader jitter",
	}, {
		name: "bad listen address ignored when prometheus disabled",
		modify: func(c *Config) {
			c.Web.ListenAddresses = []string{"nope"}
		},
	}, {
		name: "bad listen address",
		modify: func(c *Config) {
			c.Exporter.Prometheus.Enabled = ptr.To(true)
			c.Web.ListenAddresses = []string{"localhost:99999"}
		},
		error: "invalid web listen address",
	}, {
		name: "no listen address",
		modify: func(c *Config) {
			c.Exporter.Prometheus.Enabled = ptr.To(true)
			c.Web.ListenAddresses = nil
		},
		error: "at least one web listen address must be specified",
	}, {
		name: "unreadable web config",
		modify: func(c *Config) {
			c.Exporter.Prometheus.Enabled = ptr.To(true)
			c.Web.Config = "/this/does/not/exist.yaml"
		},
		error: "invalid web config file",
	}}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.error == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.error)
		})
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	assert.Contains(t, str, "duration: 5m0s")
	assert.Contains(t, str, "ticking: fixed")
	assert.Contains(t, str, "command: vcgencmd")

	manual := cfg.manualString()
	assert.Contains(t, manual, "session.interval: 1s")
	assert.Contains(t, manual, "reader.args: pmic_read_adc")
	assert.Contains(t, manual, "exporter.prometheus: false")
}

func TestBuilder(t *testing.T) {
	t.Run("Build", func(t *testing.T) {
		got, err := (&Builder{}).Build()
		assert.NoError(t, err)
		assert.Equal(t, DefaultConfig().String(), got.String())
	})

	t.Run("Use", func(t *testing.T) {
		exp := DefaultConfig()
		exp.Log.Level = "warn"

		got, err := (&Builder{}).Use(exp).Build()
		assert.NoError(t, err)
		assert.Equal(t, exp.String(), got.String())
	})

	t.Run("MergeWithInvalidYAML", func(t *testing.T) {
		cfg, err := (&Builder{}).Merge(`invalid yaml: [invalid`).Build()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse YAML")
		assert.Nil(t, cfg)
	})

	t.Run("MultipleMerges", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`
log:
  level: debug
`,
				`
session:
  interval: 3s
`,
				`
log:
  level: info
`).
			Build()
		assert.NoError(t, err)
		exp := DefaultConfig()
		exp.Session.Interval = 3 * time.Second
		assert.Equal(t, exp.String(), cfg.String())
	})

	t.Run("MergeFalseBool", func(t *testing.T) {
		cfg, err := (&Builder{}).
			Merge(`
exporter:
  stdout:
    enabled: false
`).
			Build()
		assert.NoError(t, err)
		exp := DefaultConfig()
		exp.Exporter.Stdout.Enabled = ptr.To(false)
		assert.Equal(t, exp.String(), cfg.String())
	})
}

// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML overlays on top of a base configuration. Later overlays
// win; fields absent from an overlay keep the value of the layer below.
type Builder struct {
	overlays []string
	Config   *Config
}

// Use sets the base configuration
func (b *Builder) Use(c *Config) *Builder {
	b.Config = c
	return b
}

// Merge queues YAML documents to be merged, in order, into the base configuration
func (b *Builder) Merge(overlays ...string) *Builder {
	b.overlays = append(b.overlays, overlays...)
	return b
}

// Build merges all queued overlays. The result is not validated.
func (b *Builder) Build() (*Config, error) {
	if b.Config == nil {
		b.Config = DefaultConfig()
	}

	var errs error
	for i, overlay := range b.overlays {
		layer := &Config{}
		if err := yaml.Unmarshal([]byte(overlay), layer); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to parse YAML overlay %d: %w", i, err))
			continue
		}

		if err := mergo.Merge(b.Config, layer, mergo.WithOverride, mergo.WithTransformers(optionalBool{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to merge YAML overlay %d: %w", i, err))
		}
	}

	if errs != nil {
		return nil, errs
	}
	return b.Config, nil
}

// optionalBool lets an overlay set a *bool to false; mergo would otherwise
// treat the explicit false as empty.
type optionalBool struct{}

func (optionalBool) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the engine settings and the module graph.
//
// The module catalog is deliberately external yaml: the scheduler
// knows nothing about any concrete graph, and a deployment can carry a
// catalog larger than the modules this binary constructs.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/prospectiq/enrich/services/enrich/registry"
)

// validate is the shared validator instance, initialized with the
// custom module_id rule.
var validate *validator.Validate

// moduleIDPattern is the catalog id shape: a two-digit ordinal prefix
// and a snake_case name, e.g. m01_company_context.
var moduleIDPattern = regexp.MustCompile(`^m\d{2}_[a-z][a-z0-9_]*$`)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("module_id", validateModuleID)
}

// validateModuleID enforces moduleIDPattern on a string field.
func validateModuleID(fl validator.FieldLevel) bool {
	return moduleIDPattern.MatchString(fl.Field().String())
}

// Duration wraps time.Duration so yaml files can write "168h" instead
// of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or an integer
// nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// MarshalYAML renders the duration in the string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config contains all engine settings.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Concurrency contains wave execution settings.
	Concurrency ConcurrencyConfig `json:"concurrency" yaml:"concurrency"`

	// Fetch contains external-API politeness settings.
	Fetch FetchConfig `json:"fetch" yaml:"fetch"`

	// Cache contains result cache settings.
	Cache CacheConfig `json:"cache" yaml:"cache"`
}

// ConcurrencyConfig contains wave execution settings.
type ConcurrencyConfig struct {
	// MaxConcurrency bounds how many modules of one wave run at once.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=1"`
}

// FetchConfig contains external-API politeness settings.
type FetchConfig struct {
	// RatePerSecond caps outbound fetches across all modules.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" validate:"gt=0"`

	// Burst is the rate limiter's burst allowance.
	Burst int `json:"burst" yaml:"burst" validate:"gte=1"`

	// FallbackDelay is slept before retrying against a fallback source.
	FallbackDelay Duration `json:"fallback_delay" yaml:"fallback_delay"`
}

// CacheConfig contains result cache settings.
type CacheConfig struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is true.
	Dir string `json:"dir" yaml:"dir"`

	// InMemory keeps the cache in process memory only.
	InMemory bool `json:"in_memory" yaml:"in_memory"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: ConcurrencyConfig{MaxConcurrency: 4},
		Fetch: FetchConfig{
			RatePerSecond: 5,
			Burst:         10,
			FallbackDelay: Duration(250 * time.Millisecond),
		},
		Cache: CacheConfig{InMemory: true},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !c.Cache.InMemory && c.Cache.Dir == "" {
		return fmt.Errorf("config: cache.dir is required when cache.in_memory is false")
	}
	return nil
}

// Load reads an engine config file, applying defaults for absent
// fields. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ModuleSpec is one catalog entry in the graph file.
type ModuleSpec struct {
	// ID is the module id, e.g. m01_company_context.
	ID string `json:"id" yaml:"id" validate:"required,module_id"`

	// Name is the human-readable module name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Wave is the declared execution wave, starting at 1.
	Wave int `json:"wave" yaml:"wave" validate:"gte=1"`

	// DependsOn lists upstream module ids.
	DependsOn []string `json:"depends_on" yaml:"depends_on" validate:"dive,module_id"`

	// SourceType is one of api, webpage, synthesis, computed.
	SourceType string `json:"source_type" yaml:"source_type" validate:"required,oneof=api webpage synthesis computed"`

	// CacheTTL is how long results stay fresh.
	CacheTTL Duration `json:"cache_ttl" yaml:"cache_ttl" validate:"gt=0"`
}

// GraphConfig is the external module catalog.
type GraphConfig struct {
	// Modules is the full catalog. Graph-level invariants (unknown
	// deps, cycles, wave consistency) are the registry's concern, not
	// this file parser's.
	Modules []ModuleSpec `json:"modules" yaml:"modules" validate:"required,min=1,dive"`
}

// Definitions converts the catalog to registry definitions.
func (g GraphConfig) Definitions() []registry.Definition {
	defs := make([]registry.Definition, 0, len(g.Modules))
	for _, spec := range g.Modules {
		defs = append(defs, registry.Definition{
			ModuleID:   spec.ID,
			Name:       spec.Name,
			Wave:       spec.Wave,
			DependsOn:  append([]string(nil), spec.DependsOn...),
			SourceType: registry.SourceType(spec.SourceType),
			CacheTTL:   spec.CacheTTL.Std(),
		})
	}
	return defs
}

// LoadGraph reads and validates a module graph file.
//
// Outputs:
//
//	GraphConfig - The parsed catalog.
//	error - Non-nil on unreadable files, malformed yaml, or specs that
//	        fail field validation.
func LoadGraph(path string) (GraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GraphConfig{}, fmt.Errorf("read graph %s: %w", path, err)
	}

	var graph GraphConfig
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return GraphConfig{}, fmt.Errorf("parse graph %s: %w", path, err)
	}
	if err := validate.Struct(graph); err != nil {
		return GraphConfig{}, fmt.Errorf("graph %s: %w", path, err)
	}
	return graph, nil
}

// BuildRegistry registers every catalog entry and finalizes, surfacing
// graph-level violations as registry errors.
func (g GraphConfig) BuildRegistry() (*registry.Registry, error) {
	reg := registry.New()
	for _, def := range g.Definitions() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

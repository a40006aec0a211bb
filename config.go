// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Data source; the synthetic generator is used when DataFile is empty
	DataFile string `yaml:"data_file"`
	Zones    []int  `yaml:"zones"`
	Timezone string `yaml:"timezone"`

	// Synthetic generator
	GeneratorDays int    `yaml:"generator_days"`
	GeneratorEnd  string `yaml:"generator_end"`
	Seed          int64  `yaml:"seed"`

	// Nominal electrical values for inputs without those columns
	NominalVoltage     float64 `yaml:"nominal_voltage"`
	NominalCurrent     float64 `yaml:"nominal_current"`
	NominalPowerFactor float64 `yaml:"nominal_power_factor"`

	// Pricing
	PricePerUnit float64        `yaml:"price_per_unit"`
	Currency     string         `yaml:"currency"`
	Tariffs      []TariffPeriod `yaml:"tariffs"`

	// Dashboard defaults
	Range           string `yaml:"range"`
	CustomStart     string `yaml:"custom_start"`
	CustomEnd       string `yaml:"custom_end"`
	Granularity     string `yaml:"granularity"`
	ComparePrevious bool   `yaml:"compare_previous"`
	WeekStart       string `yaml:"week_start"`

	// Anomaly detection
	AnomalyWindow int     `yaml:"anomaly_window"`
	AnomalySigma  float64 `yaml:"anomaly_sigma"`

	// Appliance disaggregation
	Appliances []ApplianceCategory `yaml:"appliances"`

	// Server
	ListenAddr string `yaml:"listen_addr"`

	// Exports
	ExportPath string `yaml:"export_path"`

	// Debugging
	Debug    bool `yaml:"debug"`
	JSONLogs bool `yaml:"json_logs"`
}

// DefaultConfig returns a configuration populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Timezone:           "UTC",
		GeneratorDays:      365,
		Seed:               42,
		NominalVoltage:     230,
		NominalCurrent:     10,
		NominalPowerFactor: 0.92,
		PricePerUnit:       0.15,
		Currency:           "$",
		Range:              string(DefaultRangePreset),
		Granularity:        string(Daily),
		WeekStart:          "monday",
		AnomalyWindow:      DefaultAnomalyWindow,
		AnomalySigma:       DefaultAnomalySigma,
		Appliances:         DefaultApplianceCategories(),
		ListenAddr:         ":8080",
		ExportPath:         getDefaultExportPath(),
	}
}

// DefaultConfigPath is read when -config is not given; it may be absent
const DefaultConfigPath = "config.yaml"

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	// If no path provided, return defaults with env var overrides
	if path == "" {
		if err := config.applyEnvironmentVariables(); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath {
		// The default file is optional
		if err := config.applyEnvironmentVariables(); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applyEnvironmentVariables(); err != nil {
		return nil, err
	}

	return config, nil
}

// getDefaultExportPath returns the default directory for exported files
func getDefaultExportPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "exports"
	}
	return filepath.Join(home, ".local", "share", "emona")
}

// applyEnvironmentVariables overrides config with environment variables
func (c *Config) applyEnvironmentVariables() error {
	if val := os.Getenv("EMONA_DATA_FILE"); val != "" {
		c.DataFile = val
	}
	if val := os.Getenv("EMONA_TIMEZONE"); val != "" {
		c.Timezone = val
	}
	if val := os.Getenv("EMONA_SEED"); val != "" {
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return &ConfigError{Field: "EMONA_SEED", Message: err.Error()}
		}
		c.Seed = seed
	}
	if val := os.Getenv("EMONA_PRICE_PER_UNIT"); val != "" {
		price, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return &ConfigError{Field: "EMONA_PRICE_PER_UNIT", Message: err.Error()}
		}
		c.PricePerUnit = price
	}
	if val := os.Getenv("EMONA_CURRENCY"); val != "" {
		c.Currency = val
	}
	if val := os.Getenv("EMONA_RANGE"); val != "" {
		c.Range = val
	}
	if val := os.Getenv("EMONA_GRANULARITY"); val != "" {
		c.Granularity = val
	}
	if val := os.Getenv("EMONA_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("EMONA_EXPORT_PATH"); val != "" {
		c.ExportPath = val
	}
	if val := os.Getenv("EMONA_DEBUG"); val == "true" || val == "1" {
		c.Debug = true
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigError{Field: "timezone", Message: err.Error()}
	}
	return loc, nil
}

// Bucketer returns the calendar bucketing for the configured week start
func (c *Config) Bucketer(g Granularity) Bucketer {
	weekStart, err := ParseWeekday(c.WeekStart)
	if err != nil {
		weekStart = time.Monday
	}
	return Bucketer{Granularity: g, WeekStart: weekStart}
}

// DefaultRequest builds the render request described by the dashboard defaults
func (c *Config) DefaultRequest() (RenderRequest, error) {
	loc, err := c.Location()
	if err != nil {
		return RenderRequest{}, err
	}

	req := RenderRequest{
		Range:           RangeSpec{Preset: RangePreset(c.Range)},
		Granularity:     Granularity(c.Granularity),
		ComparePrevious: c.ComparePrevious,
	}
	if preset, ok := ParseRangePreset(c.Range); ok {
		req.Range.Preset = preset
	}
	if g, err := ParseGranularity(c.Granularity); err == nil {
		req.Granularity = g
	}

	if req.Range.Preset == RangeCustom {
		if req.Range.Start, err = ParseRangeBound(c.CustomStart, false, loc); err != nil {
			return RenderRequest{}, err
		}
		if req.Range.End, err = ParseRangeBound(c.CustomEnd, true, loc); err != nil {
			return RenderRequest{}, err
		}
	}

	return req, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errors []string

	if c.DataFile != "" {
		if _, err := os.Stat(c.DataFile); err != nil {
			errors = append(errors, fmt.Sprintf("data_file %q cannot be read: %v", c.DataFile, err))
		}
	} else if c.GeneratorDays < 1 || c.GeneratorDays > 3650 {
		errors = append(errors, "generator_days must be between 1 and 3650")
	}

	for _, z := range c.Zones {
		if z < 1 {
			errors = append(errors, "zones are numbered from 1")
			break
		}
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.GeneratorEnd != "" {
		if _, err := ParseRangeBound(c.GeneratorEnd, false, time.UTC); err != nil {
			errors = append(errors, "generator_end must be a date or RFC3339 timestamp")
		}
	}

	if c.NominalVoltage <= 0 {
		errors = append(errors, "nominal_voltage must be positive")
	}
	if c.NominalCurrent < 0 {
		errors = append(errors, "nominal_current must not be negative")
	}
	if c.NominalPowerFactor <= 0 || c.NominalPowerFactor > 1 {
		errors = append(errors, "nominal_power_factor must be in (0, 1]")
	}

	if c.PricePerUnit < 0 {
		errors = append(errors, "price_per_unit must not be negative")
	}
	for i, t := range c.Tariffs {
		if err := t.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("tariffs[%d]: %v", i, err))
		}
	}

	if _, ok := ParseRangePreset(c.Range); !ok {
		errors = append(errors, fmt.Sprintf("range %q is not one of last_24h, last_7d, last_30d, last_90d, last_365d, custom", c.Range))
	} else if preset, _ := ParseRangePreset(c.Range); preset == RangeCustom {
		if c.CustomStart == "" || c.CustomEnd == "" {
			errors = append(errors, "custom range requires custom_start and custom_end")
		} else {
			if _, err := ParseRangeBound(c.CustomStart, false, time.UTC); err != nil {
				errors = append(errors, "custom_start must be a date or RFC3339 timestamp")
			}
			if _, err := ParseRangeBound(c.CustomEnd, true, time.UTC); err != nil {
				errors = append(errors, "custom_end must be a date or RFC3339 timestamp")
			}
		}
	}

	if _, err := ParseGranularity(c.Granularity); err != nil {
		errors = append(errors, "granularity must be hourly, daily, weekly or monthly")
	}
	if _, err := ParseWeekday(c.WeekStart); err != nil {
		errors = append(errors, "week_start must be a weekday name")
	}

	if c.AnomalyWindow < 1 {
		errors = append(errors, "anomaly_window must be at least 1")
	}
	if c.AnomalySigma <= 0 {
		errors = append(errors, "anomaly_sigma must be positive")
	}

	if len(c.Appliances) == 0 {
		errors = append(errors, "at least one appliance category is required")
	}
	weights := 0.0
	for _, a := range c.Appliances {
		if strings.TrimSpace(a.Name) == "" {
			errors = append(errors, "appliance categories need a name")
		}
		if a.Weight < 0 {
			errors = append(errors, fmt.Sprintf("appliance %q has a negative weight", a.Name))
		}
		weights += a.Weight
	}
	if len(c.Appliances) > 0 && weights <= 0 {
		errors = append(errors, "appliance weights must sum to a positive value")
	}

	// Set default export path if empty
	if c.ExportPath == "" {
		c.ExportPath = getDefaultExportPath()
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

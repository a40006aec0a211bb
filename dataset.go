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
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
)

// applianceSeedOffset separates the disaggregation stream from the generator's
const applianceSeedOffset = 7919

// Dataset is the immutable snapshot every render reads from
type Dataset struct {
	Table      *Table
	Appliances []ApplianceRow // One row per table row, same order
	Categories []string
	Source     string
	LoadedAt   time.Time
}

// NewDataset disaggregates the table once so every render sees the same split
func NewDataset(table *Table, categories []ApplianceCategory, rng *rand.Rand, source string) *Dataset {
	return &Dataset{
		Table:      table,
		Appliances: NewDisaggregator(categories, rng).Disaggregate(table.rows),
		Categories: CategoryNames(categories),
		Source:     source,
		LoadedAt:   time.Now(),
	}
}

// ApplianceSlice returns the appliance rows for the observations inside w
func (d *Dataset) ApplianceSlice(w Window) []ApplianceRow {
	lo, hi := d.Table.indexRange(w)
	if lo == hi {
		return nil
	}
	out := make([]ApplianceRow, hi-lo)
	copy(out, d.Appliances[lo:hi])
	return out
}

// DatasetSource supplies the dataset to the dashboard
type DatasetSource interface {
	Get() (*Dataset, error)
}

// DatasetCache builds the dataset on first use and serves the same snapshot
// for the life of the process. A failed build is remembered too.
type DatasetCache struct {
	once    sync.Once
	build   func() (*Dataset, error)
	dataset *Dataset
	err     error
	logger  *Logger
}

// NewDatasetCache creates a lazily initialised cache around build
func NewDatasetCache(build func() (*Dataset, error), logger *Logger) *DatasetCache {
	return &DatasetCache{build: build, logger: logger}
}

// Get returns the cached dataset, building it on the first call
func (c *DatasetCache) Get() (*Dataset, error) {
	hit := true
	c.once.Do(func() {
		hit = false
		c.dataset, c.err = c.build()
	})

	if hit {
		c.logger.Debug("Dataset cache hit")
	} else {
		c.logger.Debug("Dataset cache miss", "error", c.err)
	}
	return c.dataset, c.err
}

// StaticDataset serves a prebuilt dataset
type StaticDataset struct {
	Dataset *Dataset
}

// Get returns the wrapped dataset
func (s StaticDataset) Get() (*Dataset, error) {
	if s.Dataset == nil {
		return nil, &DataError{DataType: "dataset", Message: "no dataset loaded"}
	}
	return s.Dataset, nil
}

// BuildDataset loads the configured CSV file, or generates a synthetic
// series when none is configured, and disaggregates it
func BuildDataset(cfg *Config, logger *Logger) (*Dataset, error) {
	started := time.Now()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var rows []Observation
	source := "generator"

	if cfg.DataFile != "" {
		source = cfg.DataFile
		f, err := os.Open(cfg.DataFile)
		if err != nil {
			return nil, &DataError{DataType: "csv", Message: fmt.Sprintf("cannot open %s", cfg.DataFile), Err: err}
		}
		defer f.Close()

		rows, err = LoadCSV(f, LoaderOptions{
			Location:           loc,
			Zones:              cfg.Zones,
			NominalVoltage:     cfg.NominalVoltage,
			NominalCurrent:     cfg.NominalCurrent,
			NominalPowerFactor: cfg.NominalPowerFactor,
			Prices:             NewPriceSchedule(cfg.Tariffs, cfg.PricePerUnit),
		})
		if err != nil {
			return nil, err
		}
	} else {
		end := time.Now().In(loc)
		if cfg.GeneratorEnd != "" {
			if end, err = ParseRangeBound(cfg.GeneratorEnd, false, loc); err != nil {
				return nil, err
			}
		}
		rows = GenerateObservations(GeneratorOptions{Days: cfg.GeneratorDays, End: end}, rand.New(rand.NewSource(cfg.Seed)))
	}

	table, err := NewTable(rows)
	if err != nil {
		return nil, err
	}

	dataset := NewDataset(table, cfg.Appliances, rand.New(rand.NewSource(cfg.Seed+applianceSeedOffset)), source)
	logger.LogDatasetLoaded(source, table.Len(), table.Min(), table.Max(), time.Since(started))

	return dataset, nil
}

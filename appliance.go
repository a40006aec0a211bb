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
	"math"
	"math/rand"
	"sort"
)

// ApplianceCategory is a named consumer with a relative base weight
type ApplianceCategory struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// DefaultApplianceCategories returns the household categories used when none are configured
func DefaultApplianceCategories() []ApplianceCategory {
	return []ApplianceCategory{
		{Name: "HVAC", Weight: 0.28},
		{Name: "Lighting", Weight: 0.14},
		{Name: "Kitchen", Weight: 0.18},
		{Name: "Electronics", Weight: 0.12},
		{Name: "Water Heating", Weight: 0.18},
		{Name: "Other", Weight: 0.10},
	}
}

// CategoryNames returns the category names in order
func CategoryNames(categories []ApplianceCategory) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}

const (
	jitterMin   = 0.8
	jitterRange = 0.4
)

// Disaggregator splits row totals into simulated per-category shares
type Disaggregator struct {
	categories []ApplianceCategory
	rng        *rand.Rand
}

// NewDisaggregator creates a disaggregator drawing jitter from rng
func NewDisaggregator(categories []ApplianceCategory, rng *rand.Rand) *Disaggregator {
	return &Disaggregator{categories: categories, rng: rng}
}

// Split divides total across the categories. Each category draws a jitter in
// [0.8, 1.2) applied to its weight, shares are rescaled to the total, and the
// last category with a non-zero share absorbs rounding so that summing the
// shares in order gives exactly total.
func (d *Disaggregator) Split(total float64) []float64 {
	shares := make([]float64, len(d.categories))
	if len(shares) == 0 {
		return shares
	}

	normalizer := 0.0
	for i, c := range d.categories {
		jitter := jitterMin + jitterRange*d.rng.Float64()
		shares[i] = total * c.Weight * jitter
		normalizer += shares[i]
	}

	if total == 0 || normalizer == 0 {
		for i := range shares {
			shares[i] = 0
		}
		return shares
	}

	// Trailing zero-weight categories add nothing to the running sum
	last := len(shares) - 1
	for last > 0 && shares[last] == 0 {
		last--
	}

	scale := total / normalizer
	partial := 0.0
	for i := 0; i < last; i++ {
		shares[i] *= scale
		partial += shares[i]
	}

	rest := total - partial
	if rest < 0 {
		rest = 0
	}
	for i := 0; i < 64 && partial+rest != total; i++ {
		if partial+rest < total {
			rest = math.Nextafter(rest, math.Inf(1))
		} else {
			rest = math.Nextafter(rest, 0)
		}
	}
	shares[last] = rest

	return shares
}

// Disaggregate splits every observation's consumption, one row per observation
func (d *Disaggregator) Disaggregate(rows []Observation) []ApplianceRow {
	out := make([]ApplianceRow, len(rows))
	for i, o := range rows {
		out[i] = ApplianceRow{
			Timestamp: o.Timestamp,
			Total:     o.Consumption,
			Shares:    d.Split(o.Consumption),
		}
	}
	return out
}

// ApplianceTotals sums shares per category and sorts by consumption, largest first
func ApplianceTotals(rows []ApplianceRow, names []string) []ApplianceTotal {
	sums := make([]float64, len(names))
	grand := 0.0
	for _, r := range rows {
		for c, v := range r.Shares {
			if c < len(sums) {
				sums[c] += v
			}
		}
		grand += r.Total
	}

	totals := make([]ApplianceTotal, len(names))
	for i, name := range names {
		totals[i] = ApplianceTotal{Name: name, Consumption: sums[i]}
		if grand > 0 {
			totals[i].Share = sums[i] / grand * 100
		}
	}

	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Consumption > totals[j].Consumption
	})
	return totals
}

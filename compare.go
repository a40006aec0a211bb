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

	"gonum.org/v1/gonum/stat"
)

// Compare returns the signed percentage change from previous to current.
// A zero or non-finite baseline has no meaningful change and is reported unavailable.
func Compare(current, previous float64) Delta {
	if previous == 0 || !isFinite(previous) || !isFinite(current) {
		return Delta{}
	}
	return Delta{
		Percent:   (current - previous) / previous * 100,
		Available: true,
	}
}

// Direction describes the sign of the change for presentation
func (d Delta) Direction() string {
	switch {
	case !d.Available:
		return "unavailable"
	case d.Percent > 0:
		return "up"
	case d.Percent < 0:
		return "down"
	default:
		return "flat"
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// calculateMean calculates the mean of a slice of float64 values
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// pearson returns the correlation coefficient of xs and ys, false when undefined
func pearson(xs, ys []float64) (float64, bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if !isFinite(r) {
		return 0, false
	}
	return r, true
}

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

const (
	// DefaultAnomalyWindow is the trailing sample count of the rolling band
	DefaultAnomalyWindow = 24
	// DefaultAnomalySigma is the band half-width in standard deviations
	DefaultAnomalySigma = 3.0

	// anomalyEpsilon is the relative tolerance applied to band comparisons so
	// floating noise on flat series is never reported
	anomalyEpsilon = 1e-9
)

// AnomalyDetector flags observations outside a trailing mean ± k·σ band
type AnomalyDetector struct {
	window int
	sigma  float64
}

// NewAnomalyDetector creates a detector; non-positive arguments take the defaults
func NewAnomalyDetector(window int, sigma float64) *AnomalyDetector {
	if window <= 0 {
		window = DefaultAnomalyWindow
	}
	if sigma <= 0 {
		sigma = DefaultAnomalySigma
	}
	return &AnomalyDetector{window: window, sigma: sigma}
}

// Window returns the trailing sample count
func (d *AnomalyDetector) Window() int {
	return d.window
}

// Detect computes one flag per observation, in order. The band at index i
// uses samples i-W+1..i inclusive; the first W-1 observations have no band
// and are never anomalous.
func (d *AnomalyDetector) Detect(rows []Observation) []AnomalyFlag {
	flags := make([]AnomalyFlag, len(rows))
	if len(rows) == 0 {
		return flags
	}

	w := d.window
	values := make([]float64, len(rows))
	for i, o := range rows {
		values[i] = o.Consumption
		flags[i] = AnomalyFlag{Timestamp: o.Timestamp, Value: o.Consumption}
	}

	for i := w - 1; i < len(values); i++ {
		x := values[i]
		mean, std := trailingBand(values[i-w+1 : i+1])

		upper := mean + d.sigma*std
		lower := math.Max(0, mean-d.sigma*std)
		eps := anomalyEpsilon * math.Max(1, math.Abs(mean))

		flags[i].Upper = upper
		flags[i].Lower = lower
		flags[i].HasBounds = true
		flags[i].IsAnomaly = x > upper+eps || x < lower-eps
	}

	return flags
}

// trailingBand returns the mean and sample standard deviation of one window.
// A single-sample window has no spread.
func trailingBand(window []float64) (float64, float64) {
	if len(window) < 2 {
		return window[0], 0
	}
	mean, std := stat.MeanStdDev(window, nil)
	if !isFinite(std) {
		std = 0
	}
	return mean, std
}

// Anomalies keeps only the flagged entries
func Anomalies(flags []AnomalyFlag) []AnomalyFlag {
	var out []AnomalyFlag
	for _, f := range flags {
		if f.IsAnomaly {
			out = append(out, f)
		}
	}
	return out
}

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnomalyDetectorDefaults(t *testing.T) {
	d := NewAnomalyDetector(0, 0)
	assert.Equal(t, DefaultAnomalyWindow, d.Window())
	assert.Equal(t, DefaultAnomalySigma, d.sigma)
}

func TestDetectConstantSeriesNeverFlagged(t *testing.T) {
	for _, v := range []float64{0, 0.1, 2.37, 1234.5678} {
		flags := NewAnomalyDetector(24, 3).Detect(hourlyRows(testStart, constantValues(200, v)...))
		require.Len(t, flags, 200)
		assert.Empty(t, Anomalies(flags), "value %v", v)
	}
}

func TestDetectWarmupHasNoBounds(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		if i%2 == 1 {
			values[i] = 100
		}
	}

	flags := NewAnomalyDetector(24, 3).Detect(hourlyRows(testStart, values...))
	for i := 0; i < 23; i++ {
		assert.False(t, flags[i].HasBounds, "index %d", i)
		assert.False(t, flags[i].IsAnomaly, "index %d", i)
	}
	for i := 23; i < len(flags); i++ {
		assert.True(t, flags[i].HasBounds, "index %d", i)
	}
}

func TestDetectSpike(t *testing.T) {
	values := constantValues(48, 1.0)
	values[30] = 10.0

	flags := NewAnomalyDetector(24, 3).Detect(hourlyRows(testStart, values...))
	anomalies := Anomalies(flags)

	require.Len(t, anomalies, 1)
	assert.Equal(t, testStart.Add(30*time.Hour), anomalies[0].Timestamp)
	assert.Equal(t, 10.0, anomalies[0].Value)

	// window 7..30 holds 23 ones and the spike
	assert.InDelta(t, 1.375+3*math.Sqrt(3.375), flags[30].Upper, 1e-9)
	assert.Equal(t, 0.0, flags[30].Lower)
}

func TestDetectMatchesDirectComputation(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4, 6, 2, 6, 4, 3, 3, 8, 3, 2, 7}
	w, k := 5, 1.5

	flags := NewAnomalyDetector(w, k).Detect(hourlyRows(testStart, values...))
	for i := w - 1; i < len(values); i++ {
		window := values[i-w+1 : i+1]
		mean, std := twoPassBand(window)
		assert.InDelta(t, mean+k*std, flags[i].Upper, 1e-9, "upper at %d", i)
		assert.InDelta(t, math.Max(0, mean-k*std), flags[i].Lower, 1e-9, "lower at %d", i)

		want := values[i] > mean+k*std+1e-6 || values[i] < math.Max(0, mean-k*std)-1e-6
		if want {
			assert.True(t, flags[i].IsAnomaly, "index %d", i)
		}
	}
}

func twoPassBand(window []float64) (float64, float64) {
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	ss := 0.0
	for _, v := range window {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(window)-1))
}

func TestDetectLevelShiftedPlateau(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	values := []float64{0.1}
	for i := 0; i < 5000; i++ {
		values = append(values, 1e4+rng.NormFloat64()*50)
	}
	plateauStart := len(values)
	for i := 0; i < 300; i++ {
		values = append(values, 5000+0.001*float64(i%2))
	}

	w, k := 24, 3.0
	flags := NewAnomalyDetector(w, k).Detect(hourlyRows(testStart, values...))

	for i := plateauStart + w - 1; i < len(values); i++ {
		mean, std := twoPassBand(values[i-w+1 : i+1])
		require.InDelta(t, mean+k*std, flags[i].Upper, 1e-9, "upper at %d", i)
		require.InDelta(t, mean-k*std, flags[i].Lower, 1e-9, "lower at %d", i)
		require.False(t, flags[i].IsAnomaly, "index %d", i)
	}
}

func TestDetectWindowOfOne(t *testing.T) {
	flags := NewAnomalyDetector(1, 3).Detect(hourlyRows(testStart, 1, 50, 3))
	for _, f := range flags {
		assert.True(t, f.HasBounds)
		assert.False(t, f.IsAnomaly)
		assert.Equal(t, f.Value, f.Upper)
	}
}

func TestDetectEmpty(t *testing.T) {
	assert.Empty(t, NewAnomalyDetector(24, 3).Detect(nil))
	assert.Nil(t, Anomalies(nil))
}

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
	"encoding/base64"
	"errors"
	"fmt"

	charts "github.com/vicanso/go-charts/v2"
)

// ErrNoChartData is returned when a render has nothing to plot
var ErrNoChartData = errors.New("no data to chart")

// maxChartPoints caps the x axis; longer series are thinned evenly
const maxChartPoints = 720

// Chart names served by the dashboard
const (
	ChartConsumption = "consumption"
	ChartCost        = "cost"
	ChartAnomalies   = "anomalies"
	ChartAppliances  = "appliances"
	ChartHourly      = "hourly"
)

// ChartNames lists the charts in display order
var ChartNames = []string{ChartConsumption, ChartCost, ChartAnomalies, ChartAppliances, ChartHourly}

// ChartGenerator handles chart generation
type ChartGenerator struct {
	theme    string
	currency string
}

// NewChartGenerator creates a new chart generator
func NewChartGenerator(currency string) *ChartGenerator {
	return &ChartGenerator{
		theme:    "dark", // Match the HTML dashboard dark theme
		currency: currency,
	}
}

// Render produces the named chart as PNG bytes
func (cg *ChartGenerator) Render(name string, result *RenderResult) ([]byte, error) {
	switch name {
	case ChartConsumption:
		return cg.consumptionChart(result)
	case ChartCost:
		return cg.costChart(result)
	case ChartAnomalies:
		return cg.anomalyChart(result)
	case ChartAppliances:
		return cg.applianceChart(result)
	case ChartHourly:
		return cg.hourlyChart(result)
	}
	return nil, fmt.Errorf("unknown chart %q", name)
}

// RenderBase64 produces the named chart encoded for embedding in HTML
func (cg *ChartGenerator) RenderBase64(name string, result *RenderResult) (string, error) {
	buf, err := cg.Render(name, result)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// consumptionChart plots consumption per bucket, with the previous period when compared
func (cg *ChartGenerator) consumptionChart(result *RenderResult) ([]byte, error) {
	if len(result.Buckets) == 0 {
		return nil, ErrNoChartData
	}

	idx := sampleIndexes(len(result.Buckets))
	labels := make([]string, len(idx))
	current := make([]float64, len(idx))
	for i, j := range idx {
		labels[i] = BucketLabel(result.Buckets[j].Start, result.Request.Granularity)
		current[i] = result.Buckets[j].TotalConsumption
	}

	values := [][]float64{current}
	legend := []string{"Consumption (kWh)"}

	// Previous period aligned by bucket position
	if len(result.PreviousBuckets) > 0 {
		previous := make([]float64, len(idx))
		for i, j := range idx {
			if j < len(result.PreviousBuckets) {
				previous[i] = result.PreviousBuckets[j].TotalConsumption
			}
		}
		values = append(values, previous)
		legend = append(legend, "Previous Period (kWh)")
	}

	return cg.line(fmt.Sprintf("%s Consumption", result.Request.Granularity.Label()), labels, values, legend)
}

// costChart plots cost per bucket
func (cg *ChartGenerator) costChart(result *RenderResult) ([]byte, error) {
	if len(result.Buckets) == 0 {
		return nil, ErrNoChartData
	}

	idx := sampleIndexes(len(result.Buckets))
	labels := make([]string, len(idx))
	cost := make([]float64, len(idx))
	for i, j := range idx {
		labels[i] = BucketLabel(result.Buckets[j].Start, result.Request.Granularity)
		cost[i] = result.Buckets[j].TotalCost
	}

	return cg.line(fmt.Sprintf("%s Cost", result.Request.Granularity.Label()), labels, [][]float64{cost},
		[]string{fmt.Sprintf("Cost (%s)", cg.currency)})
}

// anomalyChart plots raw consumption inside its rolling band
func (cg *ChartGenerator) anomalyChart(result *RenderResult) ([]byte, error) {
	if len(result.Flags) == 0 {
		return nil, ErrNoChartData
	}

	idx := sampleIndexes(len(result.Flags))
	labels := make([]string, len(idx))
	values := make([]float64, len(idx))
	upper := make([]float64, len(idx))
	lower := make([]float64, len(idx))
	for i, j := range idx {
		f := result.Flags[j]
		labels[i] = f.Timestamp.Format("Jan 2 15:04")
		values[i] = f.Value
		// Warm-up points have no band; draw it collapsed onto the value
		upper[i], lower[i] = f.Value, f.Value
		if f.HasBounds {
			upper[i], lower[i] = f.Upper, f.Lower
		}
	}

	return cg.line("Consumption and Expected Range", labels,
		[][]float64{values, upper, lower},
		[]string{"Consumption (kWh)", "Upper Bound", "Lower Bound"})
}

// applianceChart plots appliance totals as bars
func (cg *ChartGenerator) applianceChart(result *RenderResult) ([]byte, error) {
	if len(result.ApplianceTotals) == 0 {
		return nil, ErrNoChartData
	}

	labels := make([]string, len(result.ApplianceTotals))
	values := make([]float64, len(result.ApplianceTotals))
	for i, a := range result.ApplianceTotals {
		labels[i] = a.Name
		values[i] = a.Consumption
	}

	return cg.bar("Consumption by Appliance", labels, [][]float64{values}, []string{"Consumption (kWh)"})
}

// hourlyChart plots mean consumption by hour of day
func (cg *ChartGenerator) hourlyChart(result *RenderResult) ([]byte, error) {
	if len(result.Patterns.Hourly) == 0 {
		return nil, ErrNoChartData
	}

	labels := make([]string, len(result.Patterns.Hourly))
	values := make([]float64, len(result.Patterns.Hourly))
	for i, p := range result.Patterns.Hourly {
		labels[i] = p.Label
		values[i] = p.Value
	}

	return cg.bar("Average Consumption by Hour", labels, [][]float64{values}, []string{"Avg. Consumption (kWh)"})
}

func (cg *ChartGenerator) line(title string, labels []string, values [][]float64, legend []string) ([]byte, error) {
	p, err := charts.LineRender(
		values,
		cg.options(title, labels, legend)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s chart: %w", title, err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

func (cg *ChartGenerator) bar(title string, labels []string, values [][]float64, legend []string) ([]byte, error) {
	p, err := charts.BarRender(
		values,
		cg.options(title, labels, legend)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s chart: %w", title, err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

func (cg *ChartGenerator) options(title string, labels, legend []string) []charts.OptionFunc {
	return []charts.OptionFunc{
		charts.TitleTextOptionFunc(title),
		charts.XAxisDataOptionFunc(labels),
		charts.LegendLabelsOptionFunc(legend, charts.PositionRight),
		charts.ThemeOptionFunc(cg.theme),
		charts.WidthOptionFunc(1200),
		charts.HeightOptionFunc(400),
		charts.PaddingOptionFunc(charts.Box{
			Top:    20,
			Right:  20,
			Bottom: 20,
			Left:   20,
		}),
	}
}

// sampleIndexes returns at most maxChartPoints evenly spaced indexes into a
// series of length n, always keeping the first and last point
func sampleIndexes(n int) []int {
	if n <= maxChartPoints {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	idx := make([]int, maxChartPoints)
	for i := range idx {
		idx[i] = i * (n - 1) / (maxChartPoints - 1)
	}
	return idx
}

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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// projectionDays are the horizons reported by cost projections
var projectionDays = []int{7, 30, 90, 365}

const peakHourCount = 5

// Dashboard turns a render request into a complete RenderResult
type Dashboard struct {
	config   *Config
	source   DatasetSource
	detector *AnomalyDetector
	logger   *Logger
	metrics  *Metrics
}

// NewDashboard creates a dashboard reading from source
func NewDashboard(config *Config, source DatasetSource, logger *Logger) *Dashboard {
	return &Dashboard{
		config:   config,
		source:   source,
		detector: NewAnomalyDetector(config.AnomalyWindow, config.AnomalySigma),
		logger:   logger.WithComponent("dashboard"),
	}
}

// WithMetrics records render metrics into m
func (d *Dashboard) WithMetrics(m *Metrics) *Dashboard {
	d.metrics = m
	return d
}

// Render runs one synchronous pass over the dataset. Only a dataset failure
// or a cancelled context is an error; every domain problem is reported as a
// warning on the result.
func (d *Dashboard) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	started := time.Now()

	dataset, err := d.source.Get()
	if err != nil {
		d.metrics.ObserveFailure()
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	table := dataset.Table

	result := &RenderResult{
		ID:          uuid.NewString(),
		GeneratedAt: started,
		DataStart:   table.Min(),
		DataEnd:     table.Max(),
		Categories:  dataset.Categories,
	}
	warn := func(w *Warning) {
		if w != nil {
			result.Warnings = append(result.Warnings, *w)
			d.logger.LogWarning(*w)
		}
	}

	// Normalise the request
	if req.Granularity == "" {
		req.Granularity = Daily
	} else if g, err := ParseGranularity(string(req.Granularity)); err != nil {
		warn(&Warning{Kind: WarnUnknownOption, Message: fmt.Sprintf("unknown granularity %q, showing daily", req.Granularity)})
		req.Granularity = Daily
	} else {
		req.Granularity = g
	}
	if req.Range.Preset == "" {
		req.Range.Preset = DefaultRangePreset
	}
	result.Request = req

	// Windows
	window, w := SelectWindow(req.Range, table.Min(), table.Max())
	warn(w)
	result.Window = window

	rows := table.Slice(window)
	result.Observations = len(rows)
	if len(rows) == 0 && (w == nil || w.Kind != WarnInvalidRange) {
		warn(&Warning{Kind: WarnEmptyWindow, Message: "no observations in the selected period"})
	}
	d.logger.LogRenderStage("window")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Aggregation
	bucketer := d.config.Bucketer(req.Granularity)
	result.Buckets = Aggregate(rows, bucketer)
	result.Consumption = ConsumptionSeries(result.Buckets)
	result.Cost = CostSeries(result.Buckets)

	daily := Aggregate(rows, d.config.Bucketer(Daily))
	result.KPIs = computeKPIs(rows, daily)
	d.logger.LogRenderStage("aggregation")

	// Comparison
	if req.ComparePrevious {
		prevWindow, w := PreviousWindow(window, table.Step(), table.Min(), table.Max())
		warn(w)
		result.Previous = &prevWindow

		prevRows := table.Slice(prevWindow)
		if len(prevRows) == 0 && w == nil {
			warn(&Warning{Kind: WarnUndefinedComparison, Message: "previous period has no observations"})
		}
		result.PreviousBuckets = Aggregate(prevRows, bucketer)
		previous := computeKPIs(prevRows, Aggregate(prevRows, d.config.Bucketer(Daily)))

		result.KPIs.TotalConsumption.Change = deltaOf(result.KPIs.TotalConsumption.Value, previous.TotalConsumption.Value, len(prevRows))
		result.KPIs.TotalCost.Change = deltaOf(result.KPIs.TotalCost.Value, previous.TotalCost.Value, len(prevRows))
		result.KPIs.AveragePrice.Change = deltaOf(result.KPIs.AveragePrice.Value, previous.AveragePrice.Value, len(prevRows))
		d.logger.LogRenderStage("comparison")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Anomalies
	result.Flags = d.detector.Detect(rows)
	result.Anomalies = Anomalies(result.Flags)
	for _, a := range result.Anomalies {
		d.logger.LogAnomalyDetected(a.Timestamp, a.Value, a.Upper)
	}
	d.logger.LogRenderStage("anomalies")

	// Appliances
	appliances := dataset.ApplianceSlice(window)
	result.ApplianceTotals = ApplianceTotals(appliances, dataset.Categories)
	result.ApplianceDaily = AggregateAppliances(appliances, d.config.Bucketer(Daily))
	d.logger.LogRenderStage("appliances")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Patterns and costs
	result.Patterns = usagePatterns(rows)
	result.PeakHours = peakHours(result.Patterns.Hourly, peakHourCount)
	result.DailyCosts = dailyCosts(daily)
	result.Projections = costProjections(result.KPIs.AvgDailyCost)
	result.Weather = weatherCorrelations(rows)
	d.logger.LogRenderStage("patterns")

	result.Insights = GenerateInsights(result, d.config.Currency)
	d.logger.LogRenderStage("insights")

	elapsed := time.Since(started)
	d.metrics.ObserveRender(result, elapsed)
	d.logger.Info("Render completed",
		"id", result.ID,
		"range", string(req.Range.Preset),
		"granularity", string(req.Granularity),
		"observations", result.Observations,
		"buckets", len(result.Buckets),
		"anomalies", len(result.Anomalies),
		"warnings", len(result.Warnings),
		"elapsed", elapsed.Round(time.Microsecond),
	)

	return result, nil
}

// deltaOf compares against a previous period; an empty period cannot be compared
func deltaOf(current, previous float64, previousRows int) *Delta {
	if previousRows == 0 {
		return &Delta{}
	}
	delta := Compare(current, previous)
	return &delta
}

// computeKPIs derives the headline figures for a window
func computeKPIs(rows []Observation, daily []Bucket) KPIs {
	var kpis KPIs
	if len(rows) == 0 {
		return kpis
	}

	prices := make([]float64, len(rows))
	for i, o := range rows {
		kpis.TotalConsumption.Value += o.Consumption
		kpis.TotalCost.Value += o.Cost()
		prices[i] = o.PricePerUnit
	}
	kpis.AveragePrice.Value = calculateMean(prices)

	dailyConsumption := make([]float64, len(daily))
	dailyCost := make([]float64, len(daily))
	for i, b := range daily {
		dailyConsumption[i] = b.TotalConsumption
		dailyCost[i] = b.TotalCost
		if i == 0 || b.TotalConsumption > kpis.PeakDailyConsumption {
			kpis.PeakDailyConsumption = b.TotalConsumption
			kpis.PeakDate = b.Start
		}
	}
	kpis.AvgDailyConsumption = calculateMean(dailyConsumption)
	kpis.AvgDailyCost = calculateMean(dailyCost)

	return kpis
}

// usagePatterns averages consumption by hour, weekday, month and weekday×hour
func usagePatterns(rows []Observation) UsagePatterns {
	var patterns UsagePatterns
	if len(rows) == 0 {
		return patterns
	}

	var hourSum [24]float64
	var hourCount [24]int
	var daySum [7]float64
	var dayCount [7]int
	var monthSum [12]float64
	var monthCount [12]int
	var cellSum [7][24]float64
	var cellCount [7][24]int

	for _, o := range rows {
		h := o.Timestamp.Hour()
		wd := mondayIndex(o.Timestamp.Weekday())
		m := int(o.Timestamp.Month()) - 1

		hourSum[h] += o.Consumption
		hourCount[h]++
		daySum[wd] += o.Consumption
		dayCount[wd]++
		monthSum[m] += o.Consumption
		monthCount[m]++
		cellSum[wd][h] += o.Consumption
		cellCount[wd][h]++
	}

	for h := 0; h < 24; h++ {
		if hourCount[h] > 0 {
			patterns.Hourly = append(patterns.Hourly, PatternPoint{
				Key:   h,
				Label: fmt.Sprintf("%02d:00", h),
				Value: hourSum[h] / float64(hourCount[h]),
				Count: hourCount[h],
			})
		}
	}
	for i := 0; i < 7; i++ {
		if dayCount[i] > 0 {
			wd := time.Weekday((i + 1) % 7)
			patterns.Weekday = append(patterns.Weekday, PatternPoint{
				Key:   int(wd),
				Label: wd.String(),
				Value: daySum[i] / float64(dayCount[i]),
				Count: dayCount[i],
			})
		}
	}
	for m := 0; m < 12; m++ {
		if monthCount[m] > 0 {
			patterns.Monthly = append(patterns.Monthly, PatternPoint{
				Key:   m + 1,
				Label: time.Month(m + 1).String(),
				Value: monthSum[m] / float64(monthCount[m]),
				Count: monthCount[m],
			})
		}
	}
	for i := 0; i < 7; i++ {
		for h := 0; h < 24; h++ {
			if cellCount[i][h] > 0 {
				patterns.Heatmap = append(patterns.Heatmap, HeatmapCell{
					Weekday: time.Weekday((i + 1) % 7),
					Hour:    h,
					Value:   cellSum[i][h] / float64(cellCount[i][h]),
				})
			}
		}
	}

	return patterns
}

// mondayIndex numbers weekdays from Monday = 0
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// peakHours returns the n hours with the highest mean consumption, highest first
func peakHours(hourly []PatternPoint, n int) []int {
	sorted := make([]PatternPoint, len(hourly))
	copy(sorted, hourly)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	hours := make([]int, len(sorted))
	for i, p := range sorted {
		hours[i] = p.Key
	}
	return hours
}

// dailyCosts projects daily buckets into the cost breakdown
func dailyCosts(daily []Bucket) []DailyCost {
	out := make([]DailyCost, len(daily))
	for i, b := range daily {
		out[i] = DailyCost{
			Date:        b.Start,
			Consumption: b.TotalConsumption,
			Cost:        b.TotalCost,
		}
		if b.TotalConsumption > 0 {
			out[i].UnitCost = b.TotalCost / b.TotalConsumption
		}
	}
	return out
}

// costProjections extrapolates the average daily cost
func costProjections(avgDailyCost float64) []CostProjection {
	out := make([]CostProjection, len(projectionDays))
	for i, days := range projectionDays {
		out[i] = CostProjection{
			Label: fmt.Sprintf("Next %d Days", days),
			Days:  days,
			Cost:  avgDailyCost * float64(days),
		}
	}
	return out
}

// weatherCorrelations relates consumption to each weather factor over rows
// carrying weather readings
func weatherCorrelations(rows []Observation) []WeatherCorrelation {
	var consumption, temperature, humidity, wind []float64
	for _, o := range rows {
		if o.Weather == nil {
			continue
		}
		consumption = append(consumption, o.Consumption)
		temperature = append(temperature, o.Weather.Temperature)
		humidity = append(humidity, o.Weather.Humidity)
		wind = append(wind, o.Weather.WindSpeed)
	}
	if len(consumption) == 0 {
		return nil
	}

	factors := []struct {
		name   string
		values []float64
	}{
		{"temperature", temperature},
		{"humidity", humidity},
		{"wind_speed", wind},
	}

	out := make([]WeatherCorrelation, len(factors))
	for i, f := range factors {
		r, ok := pearson(consumption, f.values)
		out[i] = WeatherCorrelation{
			Factor:      f.name,
			Coefficient: r,
			Samples:     len(consumption),
			Available:   ok,
		}
	}
	return out
}

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
	"strings"
	"time"
)

// Granularity is the bucket width used for aggregation
type Granularity string

const (
	Hourly  Granularity = "hourly"
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Granularities lists the supported bucket widths in display order
var Granularities = []Granularity{Hourly, Daily, Weekly, Monthly}

// ParseGranularity parses a granularity name, case-insensitively
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Hourly, Daily, Weekly, Monthly:
		return g, nil
	}
	return "", &ValidationError{Field: "granularity", Value: s, Message: "must be hourly, daily, weekly or monthly"}
}

// Label returns a title-cased name for headings
func (g Granularity) Label() string {
	if g == "" {
		return ""
	}
	return strings.ToUpper(string(g[:1])) + string(g[1:])
}

// ParseWeekday parses a weekday name such as "monday" or "sun"
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Monday, &ValidationError{Field: "week_start", Value: s, Message: "not a weekday name"}
}

// Bucketer aligns timestamps to calendar bucket boundaries in their own location
type Bucketer struct {
	Granularity Granularity
	WeekStart   time.Weekday
}

// Truncate returns the start of the bucket containing t
func (b Bucketer) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()

	switch b.Granularity {
	case Hourly:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case Weekly:
		offset := (int(t.Weekday()) - int(b.WeekStart) + 7) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// span is a half-open index range [lo, hi) sharing one bucket start
type span struct {
	start  time.Time
	lo, hi int
}

// spans partitions n chronologically ordered items into consecutive buckets
// in one pass. Periods without items produce no span.
func (b Bucketer) spans(n int, at func(i int) time.Time) []span {
	if n == 0 {
		return nil
	}

	var out []span
	current := span{start: b.Truncate(at(0)), lo: 0}
	for i := 1; i < n; i++ {
		key := b.Truncate(at(i))
		if key.Equal(current.start) {
			continue
		}
		current.hi = i
		out = append(out, current)
		current = span{start: key, lo: i}
	}
	current.hi = n
	return append(out, current)
}

// Aggregate resamples chronologically ordered observations into mean-valued
// buckets. Buckets without observations are omitted.
func Aggregate(rows []Observation, b Bucketer) []Bucket {
	spans := b.spans(len(rows), func(i int) time.Time { return rows[i].Timestamp })
	if len(spans) == 0 {
		return nil
	}

	buckets := make([]Bucket, 0, len(spans))
	for _, s := range spans {
		bucket := Bucket{Start: s.start, Count: s.hi - s.lo}
		for _, o := range rows[s.lo:s.hi] {
			bucket.TotalConsumption += o.Consumption
			bucket.TotalCost += o.Cost()
			bucket.Voltage += o.Voltage
			bucket.Current += o.Current
			bucket.PowerFactor += o.PowerFactor
			bucket.PricePerUnit += o.PricePerUnit
		}
		n := float64(bucket.Count)
		bucket.Consumption = bucket.TotalConsumption / n
		bucket.Cost = bucket.TotalCost / n
		bucket.Voltage /= n
		bucket.Current /= n
		bucket.PowerFactor /= n
		bucket.PricePerUnit /= n
		buckets = append(buckets, bucket)
	}
	return buckets
}

// AggregateAppliances sums appliance shares per bucket
func AggregateAppliances(rows []ApplianceRow, b Bucketer) []ApplianceBucket {
	spans := b.spans(len(rows), func(i int) time.Time { return rows[i].Timestamp })
	if len(spans) == 0 {
		return nil
	}

	out := make([]ApplianceBucket, 0, len(spans))
	for _, s := range spans {
		totals := make([]float64, len(rows[s.lo].Shares))
		for _, r := range rows[s.lo:s.hi] {
			for c, v := range r.Shares {
				totals[c] += v
			}
		}
		out = append(out, ApplianceBucket{Start: s.start, Totals: totals})
	}
	return out
}

// ConsumptionSeries projects mean consumption per bucket
func ConsumptionSeries(buckets []Bucket) []SeriesPoint {
	out := make([]SeriesPoint, len(buckets))
	for i, b := range buckets {
		out[i] = SeriesPoint{Timestamp: b.Start, Value: b.Consumption}
	}
	return out
}

// CostSeries projects mean cost per bucket
func CostSeries(buckets []Bucket) []SeriesPoint {
	out := make([]SeriesPoint, len(buckets))
	for i, b := range buckets {
		out[i] = SeriesPoint{Timestamp: b.Start, Value: b.Cost}
	}
	return out
}

// BucketLabel formats a bucket start for axis labels
func BucketLabel(t time.Time, g Granularity) string {
	switch g {
	case Hourly:
		return t.Format("Jan 2 15:04")
	case Monthly:
		return t.Format("Jan 2006")
	case Weekly:
		return fmt.Sprintf("wk %s", t.Format("Jan 2"))
	default:
		return t.Format("Jan 2")
	}
}

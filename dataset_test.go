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
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatasetDisaggregatesEveryRow(t *testing.T) {
	table := hourlyTable(t, testStart, testStart.Add(71*time.Hour), 1.25)
	dataset := NewDataset(table, DefaultApplianceCategories(), rand.New(rand.NewSource(1)), "test")

	require.Len(t, dataset.Appliances, table.Len())
	assert.Equal(t, CategoryNames(DefaultApplianceCategories()), dataset.Categories)
	for i, row := range dataset.Appliances {
		assert.Equal(t, table.At(i).Timestamp, row.Timestamp)
		assert.Equal(t, row.Total, row.Sum())
	}
}

func TestApplianceSliceMatchesTableSlice(t *testing.T) {
	table := hourlyTable(t, testStart, testStart.Add(71*time.Hour), 1.25)
	dataset := NewDataset(table, DefaultApplianceCategories(), rand.New(rand.NewSource(1)), "test")

	window := Window{Start: testStart.Add(10 * time.Hour), End: testStart.Add(20 * time.Hour)}
	rows := table.Slice(window)
	appliances := dataset.ApplianceSlice(window)

	require.Len(t, appliances, len(rows))
	require.Len(t, rows, 11)
	for i := range rows {
		assert.Equal(t, rows[i].Timestamp, appliances[i].Timestamp)
	}

	assert.Empty(t, dataset.ApplianceSlice(Window{Empty: true}))
}

func TestDatasetCacheBuildsOnce(t *testing.T) {
	table := hourlyTable(t, testStart, testStart.Add(23*time.Hour), 1)
	var builds int32
	cache := NewDatasetCache(func() (*Dataset, error) {
		atomic.AddInt32(&builds, 1)
		return NewDataset(table, DefaultApplianceCategories(), rand.New(rand.NewSource(1)), "test"), nil
	}, testLogger())

	var wg sync.WaitGroup
	results := make([]*Dataset, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := cache.Get()
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestDatasetCacheRemembersFailure(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	cache := NewDatasetCache(func() (*Dataset, error) {
		calls++
		return nil, boom
	}, testLogger())

	_, err := cache.Get()
	assert.ErrorIs(t, err, boom)
	_, err = cache.Get()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStaticDatasetEmpty(t *testing.T) {
	_, err := StaticDataset{}.Get()
	var derr *DataError
	assert.ErrorAs(t, err, &derr)
}

func TestBuildDatasetGenerator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GeneratorDays = 2
	cfg.GeneratorEnd = "2024-01-03"

	a, err := BuildDataset(cfg, testLogger())
	require.NoError(t, err)
	b, err := BuildDataset(cfg, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "generator", a.Source)
	assert.Equal(t, 49, a.Table.Len())
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), a.Table.Max())

	// Same seed, same data and same appliance split
	assert.Equal(t, a.Table.Rows(), b.Table.Rows())
	assert.Equal(t, a.Appliances, b.Appliances)
}

func TestBuildDatasetCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	require.NoError(t, os.WriteFile(path, []byte(zoneCSV), 0644))

	cfg := DefaultConfig()
	cfg.DataFile = path

	dataset, err := BuildDataset(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, path, dataset.Source)
	assert.Equal(t, 3, dataset.Table.Len())
}

func TestBuildDatasetMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataFile = filepath.Join(t.TempDir(), "missing.csv")

	_, err := BuildDataset(cfg, testLogger())
	var derr *DataError
	assert.ErrorAs(t, err, &derr)
}

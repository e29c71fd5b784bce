// Package testutil provides shared test infrastructure for the sandbox.
// It holds the golden scenario dataset types and assertion helpers used by
// the behavior runtime tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one recorded sandbox run: a topology, the behavior of
// every node, how long the clock was driven and what the run produced.
type GoldenTestCase struct {
	Name       string       `json:"name"`
	Seed       int64        `json:"seed"`
	TraceLevel string       `json:"trace_level"`
	Nodes      []GoldenNode `json:"nodes"`
	Links      [][2]string  `json:"links"`
	TickMs     int          `json:"tick_ms"`
	Frames     int          `json:"frames"`
	Expected   GoldenResult `json:"expected"`
}

// GoldenNode is a node of a golden run. Behavior is run source.
type GoldenNode struct {
	ID       string `json:"id"`
	Behavior string `json:"behavior"`
}

// GoldenResult is the observable outcome of a golden run.
type GoldenResult struct {
	// Exact match: concatenated console output and fault summaries per node
	Output map[string]string   `json:"output"`
	Faults map[string][]string `json:"faults"`

	// Trace counters (only recorded at trace level "deliveries")
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`

	// Virtual time after the last frame
	SimTimeS float64 `json:"sim_time_s"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

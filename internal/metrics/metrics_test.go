package metrics

import (
	"math"
	"testing"

	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/testutil"
)

func TestAggregatorAddSamples(t *testing.T) {
	samples := []Sample{
		{Name: "a", Module: "m", Line: 1, Source: "ctx-1", Calls: 1, TotalTime: 10},
		{Name: "a", Module: "m", Line: 1, Source: "ctx-2", Calls: 2, TotalTime: 30},
		{Name: "b", Module: "m", Line: 2, Source: "ctx-1", Calls: 1, TotalTime: 45},
	}
	ma := NewAggregator(100, 2)
	ma.AddSamples(samples)
	ma.AddSamples(samples[:1])

	want := Aggregator{
		MaxUniqueFunctions: 100,
		MaxNumOfExamples:   2,
		Functions: map[string]functionSamples{
			"m:1 a": {
				Name:     "a",
				Module:   "m",
				Line:     1,
				FullName: "m:1 a",
				Totals:   []int64{10, 30, 10},
				Sum:      50,
				Calls:    4,
			},
			"m:2 b": {
				Name:     "b",
				Module:   "m",
				Line:     2,
				FullName: "m:2 b",
				Totals:   []int64{45},
				Sum:      45,
				Calls:    1,
			},
		},
		FunctionsMetadata: map[string]FunctionsMetadata{
			"m:1 a": {
				MaxVal:   30,
				WorstID:  "ctx-2",
				Examples: []string{"ctx-1", "ctx-2"},
			},
			"m:2 b": {
				MaxVal:   45,
				WorstID:  "ctx-1",
				Examples: []string{"ctx-1"},
			},
		},
	}
	if diff := testutil.Diff(ma, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestAggregatorToMetrics(t *testing.T) {
	tests := []struct {
		name      string
		maxUnique uint
		samples   []Sample
		want      []FunctionMetrics
	}{
		{
			name:      "distribution across contexts",
			maxUnique: 100,
			samples: []Sample{
				{Name: "a", Module: "m", Line: 1, Source: "1", Calls: 1, TotalTime: 1},
				{Name: "a", Module: "m", Line: 1, Source: "2", Calls: 1, TotalTime: 20},
				{Name: "a", Module: "m", Line: 1, Source: "3", Calls: 1, TotalTime: 3},
				{Name: "a", Module: "m", Line: 1, Source: "4", Calls: 1, TotalTime: 4},
				{Name: "b", Module: "m", Line: 2, Source: "1", Calls: 3, TotalTime: 2},
			},
			want: []FunctionMetrics{
				{
					Name:     "a",
					Module:   "m",
					Line:     1,
					FullName: "m:1 a",
					P75:      4,
					P95:      20,
					P99:      20,
					Median:   3.5,
					StdDev:   math.Sqrt(230.0 / 3),
					Avg:      7,
					Sum:      28,
					Count:    4,
					Calls:    4,
					Worst:    "2",
					Examples: []string{"1", "2", "3"},
				},
				{
					Name:     "b",
					Module:   "m",
					Line:     2,
					FullName: "m:2 b",
					P75:      2,
					P95:      2,
					P99:      2,
					Median:   2,
					Avg:      2,
					Sum:      2,
					Count:    1,
					Calls:    3,
					Worst:    "1",
					Examples: []string{"1"},
				},
			},
		},
		{
			name:      "truncated to the heaviest functions",
			maxUnique: 1,
			samples: []Sample{
				{Name: "light", Module: "m", Source: "1", Calls: 1, TotalTime: 1},
				{Name: "heavy", Module: "m", Source: "1", Calls: 1, TotalTime: 9},
			},
			want: []FunctionMetrics{
				{
					Name:     "heavy",
					Module:   "m",
					FullName: "m:0 heavy",
					P75:      9,
					P95:      9,
					P99:      9,
					Median:   9,
					Avg:      9,
					Sum:      9,
					Count:    1,
					Calls:    1,
					Worst:    "1",
					Examples: []string{"1"},
				},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ma := NewAggregator(test.maxUnique, 3)
			ma.AddSamples(test.samples)
			if diff := testutil.Diff(ma.ToMetrics(), test.want, testutil.ApproxEqual(1e-9)); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestSamplesFromRecords(t *testing.T) {
	records := []profiler.FunctionStat{
		{
			Info:        profiler.FunctionInfo{Name: "run", Module: "app", Line: 3},
			CallCount:   2,
			TotalTime:   40,
			ContextID:   7,
			ContextName: "worker",
			Tag:         1,
		},
	}
	want := []Sample{
		{Name: "run", Module: "app", Line: 3, Source: "worker#7/1", Calls: 2, TotalTime: 40},
	}
	if diff := testutil.Diff(SamplesFromRecords(records), want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

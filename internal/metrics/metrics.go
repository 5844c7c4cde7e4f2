package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/quantile"
	"github.com/getsentry/callprof/internal/stats"
)

// Sample is a function's totals within one context and tag.
type Sample struct {
	Name      string
	Module    string
	Line      int
	Native    bool
	Source    string
	Calls     uint64
	TotalTime int64
}

type FunctionsMetadata struct {
	MaxVal   int64
	WorstID  string
	Examples []string
}

type functionSamples struct {
	Name     string
	Module   string
	Line     int
	FullName string
	Totals   []int64
	Sum      int64
	Calls    uint64
}

// Aggregator collects, for every function, the total time it spent in each
// context and tag so they can be compared.
type Aggregator struct {
	MaxUniqueFunctions uint
	MaxNumOfExamples   uint
	Functions          map[string]functionSamples
	FunctionsMetadata  map[string]FunctionsMetadata
}

type FunctionMetrics struct {
	Name     string   `json:"name"`
	Module   string   `json:"module"`
	Line     int      `json:"line"`
	FullName string   `json:"full_name"`
	P75      int64    `json:"p75"`
	P95      int64    `json:"p95"`
	P99      int64    `json:"p99"`
	Median   float64  `json:"median"`
	StdDev   float64  `json:"stddev"`
	Avg      float64  `json:"avg"`
	Sum      int64    `json:"sum"`
	Count    uint64   `json:"count"`
	Calls    uint64   `json:"calls"`
	Worst    string   `json:"worst"`
	Examples []string `json:"examples"`
}

func NewAggregator(maxUniqueFunctions uint, maxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: maxUniqueFunctions,
		MaxNumOfExamples:   maxNumOfExamples,
		Functions:          make(map[string]functionSamples),
		FunctionsMetadata:  make(map[string]FunctionsMetadata),
	}
}

// SamplesFromRecords labels each record with the context and tag it was
// recorded under.
func SamplesFromRecords(records []profiler.FunctionStat) []Sample {
	samples := make([]Sample, 0, len(records))
	for _, r := range records {
		samples = append(samples, Sample{
			Name:      r.Info.Name,
			Module:    r.Info.Module,
			Line:      r.Info.Line,
			Native:    r.Native,
			Source:    fmt.Sprintf("%s#%d/%d", r.ContextName, r.ContextID, r.Tag),
			Calls:     r.CallCount,
			TotalTime: r.TotalTime,
		})
	}
	return samples
}

func (ma *Aggregator) AddSamples(samples []Sample) {
	for _, s := range samples {
		fullName := stats.FullName(s.Native, s.Module, s.Line, s.Name)
		fn, ok := ma.Functions[fullName]
		if !ok {
			ma.Functions[fullName] = functionSamples{
				Name:     s.Name,
				Module:   s.Module,
				Line:     s.Line,
				FullName: fullName,
				Totals:   []int64{s.TotalTime},
				Sum:      s.TotalTime,
				Calls:    s.Calls,
			}
			ma.FunctionsMetadata[fullName] = FunctionsMetadata{
				MaxVal:   s.TotalTime,
				WorstID:  s.Source,
				Examples: []string{s.Source},
			}
			continue
		}
		fn.Totals = append(fn.Totals, s.TotalTime)
		fn.Sum += s.TotalTime
		fn.Calls += s.Calls
		ma.Functions[fullName] = fn

		meta := ma.FunctionsMetadata[fullName]
		if s.TotalTime > meta.MaxVal {
			meta.MaxVal = s.TotalTime
			meta.WorstID = s.Source
		}
		if len(meta.Examples) < int(ma.MaxNumOfExamples) {
			meta.Examples = append(meta.Examples, s.Source)
		}
		ma.FunctionsMetadata[fullName] = meta
	}
}

// ToMetrics returns the functions with the largest summed total time
// first, at most MaxUniqueFunctions of them.
func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.Functions))

	for _, f := range ma.Functions {
		sort.Slice(f.Totals, func(i, j int) bool {
			return f.Totals[i] < f.Totals[j]
		})
		p75, _ := nearestRank(f.Totals, 0.75)
		p95, _ := nearestRank(f.Totals, 0.95)
		p99, _ := nearestRank(f.Totals, 0.99)
		q := distribution(f.Totals)
		meta := ma.FunctionsMetadata[f.FullName]
		metrics = append(metrics, FunctionMetrics{
			Name:     f.Name,
			Module:   f.Module,
			Line:     f.Line,
			FullName: f.FullName,
			P75:      p75,
			P95:      p95,
			P99:      p99,
			Median:   q.Percentile(0.5),
			StdDev:   q.StdDev(),
			Avg:      float64(f.Sum) / float64(len(f.Totals)),
			Sum:      f.Sum,
			Count:    uint64(len(f.Totals)),
			Calls:    f.Calls,
			Worst:    meta.WorstID,
			Examples: meta.Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum != metrics[j].Sum {
			return metrics[i].Sum > metrics[j].Sum
		}
		return metrics[i].FullName < metrics[j].FullName
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}

func distribution(sorted []int64) quantile.Quantile {
	xs := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		xs = append(xs, float64(v))
	}
	return quantile.Quantile{Xs: xs, Sorted: true}
}

func nearestRank(values []int64, q float64) (int64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}

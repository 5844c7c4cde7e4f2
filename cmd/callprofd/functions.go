package main

import (
	"bytes"
	"net/http"
	"os"

	"github.com/getsentry/sentry-go"

	"github.com/getsentry/callprof/internal/httputil"
	"github.com/getsentry/callprof/internal/metrics"
	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/stats"
)

type functionsResponse struct {
	Clock string        `json:"clock"`
	Sort  string        `json:"sort"`
	Order string        `json:"order"`
	Funcs []*stats.Func `json:"functions"`
}

type functionMetricsResponse struct {
	FunctionsMetrics []metrics.FunctionMetrics `json:"functions_metrics"`
}

func filterFromRequest(r *http.Request) (profiler.Filter, error) {
	var (
		f   profiler.Filter
		err error
	)
	f.ContextID, err = httputil.OptionalUintParameter(r, "context_id")
	if err != nil {
		return f, err
	}
	f.Tag, err = httputil.OptionalUintParameter(r, "tag")
	if err != nil {
		return f, err
	}
	f.Name = r.URL.Query().Get("name")
	f.Module = r.URL.Query().Get("module")
	return f, nil
}

// writeStats sorts s as the request asks and renders it as json, text or
// callgrind.
func writeStats(w http.ResponseWriter, r *http.Request, s *stats.FuncStats) {
	key, err := stats.ParseSortKey(httputil.QueryParameter(r, "sort", "ttot"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	order, err := stats.ParseOrder(httputil.QueryParameter(r, "order", "desc"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	strip, err := httputil.BoolParameter(r, "strip_dirs")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strip {
		s.StripDirs()
	}
	s.Sort(key, order)

	var b bytes.Buffer
	switch format := httputil.QueryParameter(r, "format", "json"); format {
	case "json":
		writeJSON(w, r, http.StatusOK, functionsResponse{
			Clock: s.ClockType.String(),
			Sort:  s.SortKey.String(),
			Order: s.Order.String(),
			Funcs: s.Funcs,
		})
		return
	case "text":
		err = s.Print(&b, nil)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	case "callgrind":
		err = s.WriteCallgrind(&b, stats.CallgrindHeader{
			Creator: "callprofd",
			PID:     os.Getpid(),
			Command: []string{r.URL.Path},
		})
		w.Header().Set("Content-Type", "application/octet-stream")
	default:
		http.Error(w, "unknown format "+format, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, _ = w.Write(b.Bytes())
}

func (e *environment) getFunctions(w http.ResponseWriter, r *http.Request) {
	defer e.self.Func()()

	filter, err := filterFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(r.Context(), "processing")
	s.Description = "Collect function stats"
	fs := stats.Collect(e.replayer.Profiler(), filter)
	s.Finish()

	writeStats(w, r, fs)
}

func (e *environment) getFunctionMetrics(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(r.Context(), "processing")
	s.Description = "Aggregate function metrics"
	ma := metrics.NewAggregator(e.config.MaxUniqueFunctions, e.config.MaxExamples)
	ma.AddSamples(metrics.SamplesFromRecords(e.replayer.Profiler().FunctionStats(filter)))
	functionsMetrics := ma.ToMetrics()
	s.Finish()

	writeJSON(w, r, http.StatusOK, functionMetricsResponse{FunctionsMetrics: functionsMetrics})
}

func (e *environment) getContexts(w http.ResponseWriter, r *http.Request) {
	key, err := stats.ParseContextSortKey(httputil.QueryParameter(r, "sort", "ttot"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	order, err := stats.ParseOrder(httputil.QueryParameter(r, "order", "desc"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cs := stats.CollectContexts(e.replayer.Profiler()).Sort(key, order)

	if httputil.QueryParameter(r, "format", "json") == "text" {
		var b bytes.Buffer
		if err := cs.Print(&b, nil); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(b.Bytes())
		return
	}
	writeJSON(w, r, http.StatusOK, cs.Contexts)
}

// getSelfFunctions reports where the daemon itself spends its time.
func (e *environment) getSelfFunctions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeStats(w, r, stats.Collect(e.selfProfiler, filter))
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/callprof/internal/httputil"
	"github.com/getsentry/callprof/internal/instrument"
	"github.com/getsentry/callprof/internal/logutil"
	"github.com/getsentry/callprof/internal/profiler"
	"github.com/getsentry/callprof/internal/replay"
	"github.com/getsentry/callprof/internal/storageprovider"
	"github.com/getsentry/callprof/internal/timing"
)

type (
	// Inserter is the part of *bigquery.Inserter the daemon uses.
	Inserter interface {
		Put(ctx context.Context, src interface{}) error
	}

	environment struct {
		config ServiceConfig

		replayer *replay.Replayer
		registry *prometheus.Registry

		// self profiles the daemon's own handlers when SelfProfile is set.
		self         *instrument.Host
		selfProfiler *profiler.Profiler

		snapshotsWriter   KafkaWriter
		snapshotsInserter Inserter
		snapshots         *storageprovider.Blob
	}
)

var release string

func newEnvironment() (*environment, error) {
	envName := os.Getenv("SENTRY_ENVIRONMENT")
	if envName == "" {
		envName = "development"
	}
	config, err := loadConfig(envName)
	if err != nil {
		return nil, err
	}
	clock, err := timing.ParseClockType(config.ClockType)
	if err != nil {
		return nil, err
	}
	e, err := newProfilingEnvironment(config, clock)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	e.snapshots, err = storageprovider.OpenBlob(ctx, e.config.SnapshotsBucketURL)
	if err != nil {
		return nil, err
	}
	if e.config.BigQueryProject != "" {
		bqClient, err := bigquery.NewClient(ctx, e.config.BigQueryProject)
		if err != nil {
			return nil, err
		}
		e.snapshotsInserter = bqClient.Dataset(e.config.BigQueryDataset).Table(e.config.BigQueryTable).Inserter()
	}
	e.snapshotsWriter = &kafka.Writer{
		Addr:         kafka.TCP(e.config.KafkaBrokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    10,
		Compression:  kafka.Lz4,
		ReadTimeout:  3 * time.Second,
		Topic:        e.config.SnapshotsKafkaTopic,
		WriteTimeout: 3 * time.Second,
	}
	return e, nil
}

// newProfilingEnvironment sets up the profiler side of the daemon. Storage
// and messaging are attached by the caller.
func newProfilingEnvironment(config ServiceConfig, clock timing.ClockType) (*environment, error) {
	r, err := replay.New(clock)
	if err != nil {
		return nil, err
	}
	e := &environment{
		config:       config,
		replayer:     r,
		registry:     prometheus.NewRegistry(),
		selfProfiler: profiler.New(),
	}
	if err := e.registry.Register(newProfilerCollector(r.Profiler())); err != nil {
		return nil, err
	}
	e.self = instrument.New(e.selfProfiler)
	if config.SelfProfile {
		e.selfProfiler.Start(profiler.StartOptions{MultiContext: true})
	}
	return e, nil
}

func (e *environment) shutdown() {
	e.replayer.Profiler().Stop()
	e.selfProfiler.Stop()
	if e.snapshots != nil {
		err := e.snapshots.Close()
		if err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.snapshotsWriter != nil {
		err := e.snapshotsWriter.Close()
		if err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	metricsHandler := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/session", e.getSession},
		{http.MethodPost, "/session/start", e.postSessionStart},
		{http.MethodPost, "/session/stop", e.postSessionStop},
		{http.MethodPost, "/session/pause", e.postSessionPause},
		{http.MethodPost, "/session/resume", e.postSessionResume},
		{http.MethodDelete, "/session", e.deleteSession},
		{http.MethodPost, "/events", e.postEvents},
		{http.MethodGet, "/functions", e.getFunctions},
		{http.MethodGet, "/functions/metrics", e.getFunctionMetrics},
		{http.MethodGet, "/contexts", e.getContexts},
		{http.MethodPost, "/snapshots", e.postSnapshot},
		{http.MethodGet, "/snapshots/:snapshot_id", e.getSnapshot},
		{http.MethodGet, "/merged_snapshots", e.getMergedSnapshots},
		{http.MethodGet, "/debug/functions", e.getSelfFunctions},
		{http.MethodGet, "/metrics", metricsHandler.ServeHTTP},
		{http.MethodGet, "/health", e.getHealth},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	logutil.ConfigureLogger()

	env, err := newEnvironment()
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:                   env.config.SentryDSN,
		EnableTracing:         true,
		Environment:           env.config.Environment,
		Release:               release,
		TracesSampleRate:      1.0,
		BeforeSendTransaction: httputil.BeforeSendTransaction,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	env.replayer.Start(env.config.Builtins)
	log.Info().
		Str("clock", env.replayer.Profiler().ClockType().String()).
		Str("port", env.config.Port).
		Msg("profiling session started")

	server := http.Server{
		Addr:    ":" + env.config.Port,
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string

		Port      string `env:"PORT" env-default:"8080"`
		SentryDSN string `env:"SENTRY_DSN"`

		SnapshotsBucketURL  string   `env:"CALLPROF_SNAPSHOTS_BUCKET"`
		SnapshotsKafkaTopic string   `env:"CALLPROF_SNAPSHOTS_TOPIC"`
		KafkaBrokers        []string `env:"CALLPROF_KAFKA_BROKERS" env-separator:","`

		BigQueryProject string `env:"CALLPROF_BIGQUERY_PROJECT"`
		BigQueryDataset string
		BigQueryTable   string

		ClockType   string `env:"CALLPROF_CLOCK"`
		Builtins    bool   `env:"CALLPROF_BUILTINS"`
		SelfProfile bool   `env:"CALLPROF_SELF_PROFILE"`

		MaxUniqueFunctions uint `env:"CALLPROF_MAX_UNIQUE_FUNCTIONS"`
		MaxExamples        uint `env:"CALLPROF_MAX_EXAMPLES"`
	}
)

var (
	serviceConfigs = map[string]ServiceConfig{
		"production": {
			SentryDSN:           "https://91f2762536314cbd9cc4a163fe072682@o1.ingest.sentry.io/6424467",
			SnapshotsBucketURL:  "gs://callprof-snapshots",
			SnapshotsKafkaTopic: "callprof-snapshots",
			KafkaBrokers:        []string{"specto-dev-kafka.service.us-central1.consul:9092"},
			BigQueryProject:     "specto-dev",
			BigQueryDataset:     "profiling",
			BigQueryTable:       "function_stats",
			ClockType:           "cpu",
			MaxUniqueFunctions:  100,
			MaxExamples:         5,
		},
		"development": {
			SnapshotsBucketURL:  "file:///var/lib/callprof/snapshots",
			SnapshotsKafkaTopic: "callprof-snapshots",
			KafkaBrokers:        []string{"localhost:9092"},
			ClockType:           "wall",
			MaxUniqueFunctions:  100,
			MaxExamples:         5,
		},
	}
)

// loadConfig starts from the named environment's defaults and lets the
// process environment override them.
func loadConfig(envName string) (ServiceConfig, error) {
	cfg, exists := serviceConfigs[envName]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("service config for environment %v does not exist", envName)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ServiceConfig{}, err
	}
	cfg.Environment = envName
	return cfg, nil
}

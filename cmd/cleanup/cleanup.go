package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"

	"github.com/getsentry/callprof/internal/logutil"
	"github.com/getsentry/callprof/internal/storageprovider"
	"github.com/getsentry/callprof/internal/storageutil"
)

const snapshotsPrefix = "snapshots/"

type config struct {
	SentryDSN     string `env:"SENTRY_DSN"`
	BucketURL     string `env:"CALLPROF_SNAPSHOTS_BUCKET" env-default:"file:///var/lib/callprof/snapshots"`
	RetentionDays int    `env:"CALLPROF_RETENTION_DAYS" env-default:"90"`
	Schedule      string `env:"CALLPROF_CLEANUP_SCHEDULE" env-default:"@daily"`
}

// cleanup deletes the snapshots last written more than retentionDays
// before now.
func cleanup(ctx context.Context, bucket *storageprovider.Blob, now time.Time, retentionDays int) (int, error) {
	limit := now.Add(time.Hour * 24 * -1 * time.Duration(retentionDays))
	return storageutil.DeleteOlderThan(ctx, bucket, bucket, snapshotsPrefix, limit)
}

func main() {
	logutil.ConfigureLogger()

	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatal().Err(err).Msg("can't read configuration")
	}

	err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bucket, err := storageprovider.OpenBlob(ctx, cfg.BucketURL)
	if err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.BucketURL).Msg("can't open the snapshots bucket")
	}
	defer bucket.Close()

	c := cron.New()
	_, err = c.AddFunc(cfg.Schedule, func() {
		deleted, err := cleanup(ctx, bucket, time.Now(), cfg.RetentionDays)
		if err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("error cleaning up snapshots")
			return
		}
		log.Info().Int("deleted", deleted).Msg("snapshots cleaned up")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up cron function")
	}

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-exitSignal

		cancel()
		c.Stop()
	}()

	c.Run()
	sentry.Flush(5 * time.Second)
}

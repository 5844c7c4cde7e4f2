package main

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/getsentry/callprof/internal/stats"
)

type (
	KafkaWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// SnapshotKafkaMessage announces a snapshot written to the bucket.
	SnapshotKafkaMessage struct {
		ID          string `json:"snapshot_id"`
		Environment string `json:"environment,omitempty"`
		Clock       string `json:"clock"`
		ObjectName  string `json:"object_name"`
		Functions   int    `json:"functions"`
		TotalTimeNS int64  `json:"total_time_ns"`
		Timestamp   int64  `json:"timestamp"`
	}
)

func buildSnapshotKafkaMessage(sn stats.Snapshot, objectName, environment string) SnapshotKafkaMessage {
	var total int64
	for _, f := range sn.Funcs {
		total += f.SelfTime
	}
	return SnapshotKafkaMessage{
		ID:          sn.ID,
		Environment: environment,
		Clock:       sn.Clock,
		ObjectName:  objectName,
		Functions:   len(sn.Funcs),
		TotalTimeNS: total,
		Timestamp:   sn.CreatedAt.Unix(),
	}
}

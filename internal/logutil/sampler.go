package logutil

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}

// BurstLogger returns a child of the global logger letting through burst
// events per period. Past the burst only events at level or above pass.
func BurstLogger(burst uint32, period time.Duration, level zerolog.Level) zerolog.Logger {
	return log.Logger.Sample(&zerolog.BurstSampler{
		Burst:       burst,
		Period:      period,
		NextSampler: LevelSampler{Level: level},
	})
}

package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/metrics"
)

// Failure records a channel that did not complete.
type Failure struct {
	ChannelID string `json:"channel_id"`
	Error     string `json:"error"`
}

// Summary is the outcome of one Run.
type Summary struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Succeeded  []ChannelReport  `json:"succeeded"`
	Failed     []Failure        `json:"failed"`
	Rows       map[string]int64 `json:"rows"`
}

// OK reports whether every channel succeeded.
func (s Summary) OK() bool { return len(s.Failed) == 0 }

// Run ingests channels one after another. A failing channel is logged and
// recorded and the run moves on; Run itself never fails.
func (i *Ingester) Run(ctx context.Context, channelIDs []string) Summary {
	summary := Summary{StartedAt: i.clock.Now()}
	totals := make(map[string]int64)

	i.logger.Info("Ingest run started",
		zap.Int("channels", len(channelIDs)),
		zap.Time("target_day", i.TargetDay()))

	for _, id := range channelIDs {
		if err := ctx.Err(); err != nil {
			summary.Failed = append(summary.Failed, Failure{ChannelID: id, Error: err.Error()})
			metrics.ChannelRuns.WithLabelValues("cancelled").Inc()
			continue
		}

		report, err := i.IngestChannel(ctx, id)
		if err != nil {
			i.logger.Error("Channel ingest failed",
				zap.String("channel_id", id),
				zap.Error(err))
			summary.Failed = append(summary.Failed, Failure{ChannelID: id, Error: err.Error()})
			metrics.ChannelRuns.WithLabelValues("failed").Inc()
		} else {
			summary.Succeeded = append(summary.Succeeded, report)
			metrics.ChannelRuns.WithLabelValues("succeeded").Inc()
		}

		for table, n := range report.Rows {
			totals[table] += n
		}
	}

	summary.Rows = totals
	summary.FinishedAt = i.clock.Now()

	elapsed := summary.FinishedAt.Sub(summary.StartedAt)
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))

	i.logger.Info("Ingest run finished",
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("failed", len(summary.Failed)),
		zap.Any("rows", summary.Rows),
		zap.Duration("duration", elapsed))
	return summary
}

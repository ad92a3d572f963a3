package youtube

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"

	"github.com/canopy-network/ytwarehouse/pkg/retry"
	"github.com/canopy-network/ytwarehouse/pkg/utils"
)

// Fetcher issues Data and Analytics API calls through a retry policy.
type Fetcher struct {
	data   DataAPI
	policy retry.Policy
	logger *zap.Logger
}

func NewFetcher(data DataAPI, policy retry.Policy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Fetcher{data: data, policy: policy, logger: logger}
}

// Channel fetches channel metadata. A nil channel means the id is unknown.
func (f *Fetcher) Channel(ctx context.Context, channelID string) (*yt.Channel, error) {
	ch, err := retry.Do(ctx, f.policy, "channels.list", func(ctx context.Context) (*yt.Channel, error) {
		return f.data.Channel(ctx, channelID)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return ch, nil
}

// Videos fetches metadata for ids in batches of BatchSize.
func (f *Fetcher) Videos(ctx context.Context, ids []string) ([]*yt.Video, error) {
	out := make([]*yt.Video, 0, len(ids))
	for _, batch := range utils.Chunk(ids, BatchSize) {
		items, err := retry.Do(ctx, f.policy, "videos.list", func(ctx context.Context) ([]*yt.Video, error) {
			return f.data.Videos(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %d videos: %w", len(batch), err)
		}
		out = append(out, items...)
	}
	return out, nil
}

// ChannelDaily requests channel-level metrics for a single day.
func (f *Fetcher) ChannelDaily(ctx context.Context, api AnalyticsAPI, channelID string, day time.Time) (*ya.QueryResponse, error) {
	q := ReportQuery{
		ChannelID:  channelID,
		Start:      day,
		End:        day,
		Metrics:    ChannelMetrics,
		Dimensions: DailyDimension,
	}
	resp, err := retry.Do(ctx, f.policy, "reports.query.channel", func(ctx context.Context) (*ya.QueryResponse, error) {
		return api.Query(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("channel analytics %s: %w", channelID, err)
	}
	return resp, nil
}

// VideoDaily requests per-video metrics for a single day.
func (f *Fetcher) VideoDaily(ctx context.Context, api AnalyticsAPI, channelID, videoID string, day time.Time) (*ya.QueryResponse, error) {
	q := ReportQuery{
		ChannelID:  channelID,
		Start:      day,
		End:        day,
		Metrics:    VideoMetrics,
		Dimensions: DailyDimension,
		Filters:    "video==" + videoID,
	}
	resp, err := retry.Do(ctx, f.policy, "reports.query.video", func(ctx context.Context) (*ya.QueryResponse, error) {
		return api.Query(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("video analytics %s: %w", videoID, err)
	}
	return resp, nil
}

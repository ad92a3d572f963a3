// Package ingest drives one ingestion pass: per channel it refreshes metadata,
// pulls the lagged day of analytics, writes everything to the warehouse and
// applies retention.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
	"github.com/canopy-network/ytwarehouse/pkg/db/transform"
	"github.com/canopy-network/ytwarehouse/pkg/retention"
	"github.com/canopy-network/ytwarehouse/pkg/youtube"
)

// Store is the warehouse surface the ingester writes through.
type Store interface {
	UpsertChannels(ctx context.Context, rows []*models.Channel) (int64, error)
	UpsertVideos(ctx context.Context, rows []*models.Video) (int64, error)
	UpsertChannelDaily(ctx context.Context, rows []*models.ChannelDailyStat) (int64, error)
	UpsertVideoDaily(ctx context.Context, rows []*models.VideoDailyStat) (int64, error)
	RecentVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error)
}

// Fetcher is the retrying API layer.
type Fetcher interface {
	Channel(ctx context.Context, channelID string) (*yt.Channel, error)
	UploadIDs(ctx context.Context, playlistID string, opts youtube.CollectOptions) ([]string, error)
	Videos(ctx context.Context, ids []string) ([]*yt.Video, error)
	ChannelDaily(ctx context.Context, api youtube.AnalyticsAPI, channelID string, day time.Time) (*ya.QueryResponse, error)
	VideoDaily(ctx context.Context, api youtube.AnalyticsAPI, channelID, videoID string, day time.Time) (*ya.QueryResponse, error)
}

// AnalyticsProvider hands out an Analytics client authorized for one channel.
type AnalyticsProvider interface {
	ForChannel(ctx context.Context, channelID string) (youtube.AnalyticsAPI, error)
}

// Maintainer applies the retention policy after each channel.
type Maintainer interface {
	Maintain(ctx context.Context, retainDays int, mode retention.Mode) (retention.Result, error)
}

type Config struct {
	// LagDays is how far behind today the analytics target day is.
	LagDays       int
	RetainDays    int
	MaxPages      int
	RetentionMode retention.Mode
	StopAtKnown   bool
	VideoWorkers  int
}

func DefaultConfig() Config {
	return Config{
		LagDays:       2,
		RetainDays:    30,
		MaxPages:      2,
		RetentionMode: retention.ModePrune,
		VideoWorkers:  1,
	}
}

type Ingester struct {
	cfg       Config
	fetcher   Fetcher
	analytics AnalyticsProvider
	store     Store
	retention Maintainer
	clock     clockwork.Clock
	logger    *zap.Logger
}

func New(cfg Config, fetcher Fetcher, analytics AnalyticsProvider, store Store, maint Maintainer, clock clockwork.Clock, logger *zap.Logger) *Ingester {
	if cfg.VideoWorkers < 1 {
		cfg.VideoWorkers = 1
	}
	if cfg.LagDays < 1 {
		cfg.LagDays = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		cfg:       cfg,
		fetcher:   fetcher,
		analytics: analytics,
		store:     store,
		retention: maint,
		clock:     clock,
		logger:    logger,
	}
}

// Today is the current UTC calendar date.
func (i *Ingester) Today() time.Time {
	return transform.TruncateDay(i.clock.Now())
}

// TargetDay is the analytics day fetched by a run: today minus LagDays.
func (i *Ingester) TargetDay() time.Time {
	return i.Today().AddDate(0, 0, -i.cfg.LagDays)
}

// retainedFrom is the first video daily date retention keeps. Rows before it
// would be pruned or rolled up again right after being written, so they are
// never stored. The zero time means no lower bound.
func (i *Ingester) retainedFrom() time.Time {
	if i.cfg.RetentionMode == retention.ModeNone || i.cfg.RetainDays < 1 {
		return time.Time{}
	}
	return i.Today().AddDate(0, 0, -i.cfg.RetainDays)
}

// ChannelReport describes what one channel ingest wrote.
type ChannelReport struct {
	ChannelID  string            `json:"channel_id"`
	TargetDay  time.Time         `json:"target_day"`
	Uploads    int               `json:"uploads"`
	NewUploads int               `json:"new_uploads"`
	Rows       map[string]int64  `json:"rows"`
	Dropped    int               `json:"dropped_rows"`
	Retention  *retention.Result `json:"retention,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

func (r *ChannelReport) addRows(table string, n int64) {
	if r.Rows == nil {
		r.Rows = make(map[string]int64)
	}
	r.Rows[table] += n
}

// IngestChannel runs the full pipeline for one channel. Each table is written
// as its own atomic batch; a failure part way leaves earlier batches in place.
func (i *Ingester) IngestChannel(ctx context.Context, channelID string) (ChannelReport, error) {
	start := i.clock.Now()
	logger := i.logger.With(zap.String("channel_id", channelID))
	target := i.TargetDay()
	report := ChannelReport{ChannelID: channelID, TargetDay: target, Rows: map[string]int64{}}

	// 1. channel metadata
	rawChannel, err := i.fetcher.Channel(ctx, channelID)
	if err != nil {
		return report, err
	}
	if ch, ok := transform.Channel(rawChannel); ok {
		n, err := i.store.UpsertChannels(ctx, []*models.Channel{ch})
		if err != nil {
			return report, fmt.Errorf("write channel: %w", err)
		}
		report.addRows(models.ChannelsTableName, n)
	} else {
		logger.Warn("Channel not returned by the Data API")
	}

	// 2. uploads
	uploads, fresh, err := i.collectUploads(ctx, channelID, rawChannel)
	if err != nil {
		return report, err
	}
	report.Uploads = len(uploads)
	report.NewUploads = len(fresh)

	// 3. video metadata
	if len(fresh) > 0 {
		rawVideos, err := i.fetcher.Videos(ctx, fresh)
		if err != nil {
			return report, err
		}
		n, err := i.store.UpsertVideos(ctx, transform.Videos(rawVideos, channelID))
		if err != nil {
			return report, fmt.Errorf("write videos: %w", err)
		}
		report.addRows(models.VideosTableName, n)
	}

	// 4. analytics client
	api, err := i.analytics.ForChannel(ctx, channelID)
	if err != nil {
		return report, fmt.Errorf("analytics client: %w", err)
	}

	// 5. channel daily
	resp, err := i.fetcher.ChannelDaily(ctx, api, channelID, target)
	if err != nil {
		return report, err
	}
	channelDaily := transform.ChannelDaily(resp, channelID)
	chRows, future := keepWindow(channelDaily.Rows, time.Time{}, i.Today(), func(r *models.ChannelDailyStat) time.Time { return r.Date })
	report.Dropped += channelDaily.Dropped + future
	n, err := i.store.UpsertChannelDaily(ctx, chRows)
	if err != nil {
		return report, fmt.Errorf("write channel daily: %w", err)
	}
	report.addRows(models.ChannelDailyStatsTableName, n)

	// 6. video daily
	videoRows, dropped, err := i.videoDaily(ctx, api, channelID, uploads, target)
	if err != nil {
		return report, err
	}
	report.Dropped += dropped
	n, err = i.store.UpsertVideoDaily(ctx, videoRows)
	if err != nil {
		return report, fmt.Errorf("write video daily: %w", err)
	}
	report.addRows(models.VideoDailyStatsTableName, n)

	if report.Dropped > 0 {
		logger.Warn("Dropped undated or out-of-window analytics rows", zap.Int("rows", report.Dropped))
	}

	// 7. retention
	if i.retention != nil && i.cfg.RetentionMode != retention.ModeNone {
		res, err := i.retention.Maintain(ctx, i.cfg.RetainDays, i.cfg.RetentionMode)
		if err != nil {
			return report, fmt.Errorf("retention: %w", err)
		}
		report.Retention = &res
	}

	report.Duration = i.clock.Since(start)
	logger.Info("Channel ingested",
		zap.Time("target_day", target),
		zap.Int("uploads", report.Uploads),
		zap.Int("new_uploads", report.NewUploads),
		zap.Any("rows", report.Rows),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// collectUploads returns the upload ids whose analytics are fetched and the
// subset whose metadata must be refreshed. Without StopAtKnown both are the
// full walk. With it, metadata is refreshed only for ids not yet stored, and
// analytics cover the new ids followed by the most recent stored ones. Either
// way at most MaxPages*PageSize ids are returned when MaxPages is set.
func (i *Ingester) collectUploads(ctx context.Context, channelID string, raw *yt.Channel) (all, fresh []string, err error) {
	playlist := transform.UploadsPlaylist(raw)
	if playlist == "" {
		i.logger.Warn("Channel has no uploads playlist", zap.String("channel_id", channelID))
		return nil, nil, nil
	}

	limit := 0
	if i.cfg.MaxPages > 0 {
		limit = i.cfg.MaxPages * youtube.PageSize
	}

	opts := youtube.CollectOptions{MaxPages: i.cfg.MaxPages}
	var recent []string
	if i.cfg.StopAtKnown {
		recent, err = i.store.RecentVideoIDs(ctx, channelID, limit)
		if err != nil {
			return nil, nil, err
		}
		opts.Known = make(map[string]struct{}, len(recent))
		for _, id := range recent {
			opts.Known[id] = struct{}{}
		}
	}

	ids, err := i.fetcher.UploadIDs(ctx, playlist, opts)
	if err != nil {
		return nil, nil, err
	}
	if !i.cfg.StopAtKnown {
		return ids, ids, nil
	}

	all = make([]string, 0, len(ids)+len(recent))
	all = append(all, ids...)
	all = append(all, recent...)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, ids, nil
}

// videoDaily fetches the target day for each video on a bounded worker pool.
// The first failure stops the remaining fetches and fails the channel.
func (i *Ingester) videoDaily(ctx context.Context, api youtube.AnalyticsAPI, channelID string, videoIDs []string, day time.Time) ([]*models.VideoDailyStat, int, error) {
	if len(videoIDs) == 0 {
		return nil, 0, nil
	}

	pool := pond.NewPool(i.cfg.VideoWorkers, pond.WithQueueSize(len(videoIDs)))
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var (
		mu       sync.Mutex
		firstErr error
		failed   atomic.Bool
	)
	dropped := xsync.NewCounter()
	results := make([][]*models.VideoDailyStat, len(videoIDs))
	from, to := i.retainedFrom(), i.Today()

	for idx, videoID := range videoIDs {
		group.Submit(func() {
			if groupCtx.Err() != nil || failed.Load() {
				return
			}
			resp, err := i.fetcher.VideoDaily(groupCtx, api, channelID, videoID, day)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				failed.Store(true)
				return
			}
			res := transform.VideoDaily(resp, videoID)
			rows, outside := keepWindow(res.Rows, from, to, func(r *models.VideoDailyStat) time.Time { return r.Date })
			dropped.Add(int64(res.Dropped + outside))
			results[idx] = rows
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, 0, fmt.Errorf("video analytics group: %w", err)
	}
	if firstErr != nil {
		return nil, 0, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var out []*models.VideoDailyStat
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, int(dropped.Value()), nil
}

// keepWindow keeps rows dated within [from, to) and reports how many it dropped.
// to is today, so only completed days are stored.
func keepWindow[T any](rows []T, from, to time.Time, date func(T) time.Time) ([]T, int) {
	out := rows[:0:0]
	for _, r := range rows {
		d := date(r)
		if d.Before(to) && !d.Before(from) {
			out = append(out, r)
		}
	}
	return out, len(rows) - len(out)
}

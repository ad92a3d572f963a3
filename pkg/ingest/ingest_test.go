package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
	"github.com/canopy-network/ytwarehouse/pkg/retention"
	"github.com/canopy-network/ytwarehouse/pkg/youtube"
)

var now = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dailyResp(rows ...[]interface{}) *ya.QueryResponse {
	return &ya.QueryResponse{
		ColumnHeaders: []*ya.ResultTableColumnHeader{{Name: "day"}, {Name: "views"}},
		Rows:          rows,
	}
}

type fakeFetcher struct {
	mu           sync.Mutex
	channels     map[string]*yt.Channel
	uploads      map[string][]string // playlist -> ids
	collectOpts  []youtube.CollectOptions
	videoCalls   [][]string
	videoDaily   map[string]*ya.QueryResponse
	videoErr     map[string]error
	channelDaily *ya.QueryResponse
	days         []time.Time
}

func (f *fakeFetcher) Channel(_ context.Context, id string) (*yt.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, errors.New("quota exceeded")
	}
	return ch, nil
}

func (f *fakeFetcher) UploadIDs(_ context.Context, playlist string, opts youtube.CollectOptions) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collectOpts = append(f.collectOpts, opts)
	var out []string
	for _, id := range f.uploads[playlist] {
		if _, known := opts.Known[id]; known {
			break
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeFetcher) Videos(_ context.Context, ids []string) ([]*yt.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls = append(f.videoCalls, ids)
	out := make([]*yt.Video, len(ids))
	for i, id := range ids {
		out[i] = &yt.Video{Id: id, Snippet: &yt.VideoSnippet{Title: "t-" + id}}
	}
	return out, nil
}

func (f *fakeFetcher) ChannelDaily(_ context.Context, _ youtube.AnalyticsAPI, _ string, day time.Time) (*ya.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, day)
	if f.channelDaily != nil {
		return f.channelDaily, nil
	}
	return dailyResp([]interface{}{day.Format("2006-01-02"), float64(100)}), nil
}

func (f *fakeFetcher) VideoDaily(_ context.Context, _ youtube.AnalyticsAPI, _ string, videoID string, day time.Time) (*ya.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.videoErr[videoID]; err != nil {
		return nil, err
	}
	if r, ok := f.videoDaily[videoID]; ok {
		return r, nil
	}
	return dailyResp([]interface{}{day.Format("2006-01-02"), float64(7)}), nil
}

type fakeProvider struct {
	denied map[string]bool
}

func (p *fakeProvider) ForChannel(_ context.Context, id string) (youtube.AnalyticsAPI, error) {
	if p.denied[id] {
		return nil, errors.New("no oauth token for channel")
	}
	return nil, nil
}

type fakeStore struct {
	mu           sync.Mutex
	channels     []*models.Channel
	videos       []*models.Video
	channelDaily []*models.ChannelDailyStat
	videoDaily   []*models.VideoDailyStat
	known        map[string][]string // newest first
	limits       []int
}

func (s *fakeStore) UpsertChannels(_ context.Context, rows []*models.Channel) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) UpsertVideos(_ context.Context, rows []*models.Video) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) UpsertChannelDaily(_ context.Context, rows []*models.ChannelDailyStat) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelDaily = append(s.channelDaily, rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) UpsertVideoDaily(_ context.Context, rows []*models.VideoDailyStat) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoDaily = append(s.videoDaily, rows...)
	return int64(len(rows)), nil
}

func (s *fakeStore) RecentVideoIDs(_ context.Context, channelID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = append(s.limits, limit)
	ids := s.known[channelID]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fakeMaintainer struct {
	calls []retention.Mode
}

func (m *fakeMaintainer) Maintain(_ context.Context, retainDays int, mode retention.Mode) (retention.Result, error) {
	m.calls = append(m.calls, mode)
	return retention.Result{Mode: mode}, nil
}

func channel(id, uploads string) *yt.Channel {
	return &yt.Channel{
		Id:      id,
		Snippet: &yt.ChannelSnippet{Title: "title-" + id},
		ContentDetails: &yt.ChannelContentDetails{
			RelatedPlaylists: &yt.ChannelContentDetailsRelatedPlaylists{Uploads: uploads},
		},
	}
}

type harness struct {
	fetcher  *fakeFetcher
	provider *fakeProvider
	store    *fakeStore
	maint    *fakeMaintainer
}

func newHarness() *harness {
	return &harness{
		fetcher: &fakeFetcher{
			channels: map[string]*yt.Channel{
				"UC1": channel("UC1", "UU1"),
				"UC2": channel("UC2", "UU2"),
				"UC3": channel("UC3", "UU3"),
			},
			uploads: map[string][]string{
				"UU1": {"v1", "v2", "v3"},
				"UU2": {"w1"},
				"UU3": {"x1", "x2"},
			},
		},
		provider: &fakeProvider{denied: map[string]bool{}},
		store:    &fakeStore{known: map[string][]string{}},
		maint:    &fakeMaintainer{},
	}
}

func (h *harness) ingester(cfg Config) *Ingester {
	return New(cfg, h.fetcher, h.provider, h.store, h.maint, clockwork.NewFakeClockAt(now), zap.NewNop())
}

func TestIngestChannel_WritesEveryTable(t *testing.T) {
	h := newHarness()
	ing := h.ingester(DefaultConfig())

	report, err := ing.IngestChannel(context.Background(), "UC1")

	require.NoError(t, err)
	assert.Equal(t, utcDay(2024, 5, 8), report.TargetDay)
	assert.Equal(t, 3, report.Uploads)
	assert.Equal(t, int64(1), report.Rows[models.ChannelsTableName])
	assert.Equal(t, int64(3), report.Rows[models.VideosTableName])
	assert.Equal(t, int64(1), report.Rows[models.ChannelDailyStatsTableName])
	assert.Equal(t, int64(3), report.Rows[models.VideoDailyStatsTableName])
	require.NotNil(t, report.Retention)
	assert.Equal(t, []retention.Mode{retention.ModePrune}, h.maint.calls)

	assert.Equal(t, []time.Time{utcDay(2024, 5, 8)}, h.fetcher.days)
	require.Len(t, h.store.videos, 3)
	assert.Equal(t, "UC1", h.store.videos[0].ChannelID)
	assert.Equal(t, 2, h.fetcher.collectOpts[0].MaxPages)
	assert.Nil(t, h.fetcher.collectOpts[0].Known)
}

func TestIngestChannel_LagDays(t *testing.T) {
	h := newHarness()
	cfg := DefaultConfig()
	cfg.LagDays = 5
	ing := h.ingester(cfg)

	_, err := ing.IngestChannel(context.Background(), "UC2")

	require.NoError(t, err)
	assert.Equal(t, []time.Time{utcDay(2024, 5, 5)}, h.fetcher.days)
}

func TestIngestChannel_DropsFutureAndUndatedRows(t *testing.T) {
	h := newHarness()
	h.fetcher.channelDaily = dailyResp(
		[]interface{}{"2024-05-08", float64(1)},
		[]interface{}{"2024-05-10", float64(2)}, // today
		[]interface{}{"2024-05-11", float64(3)},
		[]interface{}{"bad-date", float64(4)},
	)
	ing := h.ingester(DefaultConfig())

	report, err := ing.IngestChannel(context.Background(), "UC2")

	require.NoError(t, err)
	require.Len(t, h.store.channelDaily, 1)
	assert.Equal(t, utcDay(2024, 5, 8), h.store.channelDaily[0].Date)
	assert.Equal(t, 3, report.Dropped)
	for _, r := range h.store.videoDaily {
		assert.True(t, r.Date.Before(ing.Today()))
	}
}

func TestIngestChannel_StopAtKnown(t *testing.T) {
	h := newHarness()
	h.store.known["UC1"] = []string{"v2", "v3", "old"}
	cfg := DefaultConfig()
	cfg.StopAtKnown = true
	ing := h.ingester(cfg)

	report, err := ing.IngestChannel(context.Background(), "UC1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.NewUploads)
	assert.Equal(t, 4, report.Uploads)
	require.Len(t, h.fetcher.videoCalls, 1)
	assert.Equal(t, []string{"v1"}, h.fetcher.videoCalls[0])

	var ids []string
	for _, r := range h.store.videoDaily {
		ids = append(ids, r.VideoID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"old", "v1", "v2", "v3"}, ids)
}

func TestIngestChannel_StopAtKnownIsBoundedByPages(t *testing.T) {
	h := newHarness()
	known := make([]string, 80)
	for i := range known {
		known[i] = fmt.Sprintf("k%02d", i)
	}
	h.store.known["UC1"] = known
	cfg := DefaultConfig()
	cfg.StopAtKnown = true
	cfg.MaxPages = 1
	ing := h.ingester(cfg)

	report, err := ing.IngestChannel(context.Background(), "UC1")

	require.NoError(t, err)
	assert.Equal(t, []int{youtube.PageSize}, h.store.limits)
	assert.Equal(t, 3, report.NewUploads)
	assert.Equal(t, youtube.PageSize, report.Uploads)
	require.Len(t, h.store.videoDaily, youtube.PageSize)
	assert.Equal(t, "v1", h.store.videoDaily[0].VideoID)
	assert.Equal(t, "k46", h.store.videoDaily[youtube.PageSize-1].VideoID)
}

func TestIngestChannel_SkipsVideoRowsOutsideRetention(t *testing.T) {
	h := newHarness()
	h.fetcher.videoDaily = map[string]*ya.QueryResponse{
		"w1": dailyResp(
			[]interface{}{"2024-05-08", float64(1)}, // kept
			[]interface{}{"2024-05-07", float64(2)}, // before the cutoff
		),
	}
	cfg := DefaultConfig()
	cfg.RetainDays = 2
	cfg.RetentionMode = retention.ModeRollup
	ing := h.ingester(cfg)

	report, err := ing.IngestChannel(context.Background(), "UC2")

	require.NoError(t, err)
	require.Len(t, h.store.videoDaily, 1)
	assert.Equal(t, utcDay(2024, 5, 8), h.store.videoDaily[0].Date)
	assert.Equal(t, 1, report.Dropped)
}

func TestIngestChannel_LagBeyondRetentionWritesNoVideoRows(t *testing.T) {
	h := newHarness()
	cfg := DefaultConfig()
	cfg.LagDays = 2
	cfg.RetainDays = 1
	cfg.RetentionMode = retention.ModeRollup
	ing := h.ingester(cfg)

	for run := 0; run < 2; run++ {
		_, err := ing.IngestChannel(context.Background(), "UC1")
		require.NoError(t, err)
	}

	assert.Empty(t, h.store.videoDaily, "the target day is already outside retention")
	assert.Len(t, h.store.channelDaily, 2)
}

func TestIngestChannel_VideoFanOut(t *testing.T) {
	h := newHarness()
	uploads := make([]string, 40)
	for i := range uploads {
		uploads[i] = "fan" + string(rune('A'+i))
	}
	h.fetcher.uploads["UU1"] = uploads
	cfg := DefaultConfig()
	cfg.VideoWorkers = 8
	ing := h.ingester(cfg)

	report, err := ing.IngestChannel(context.Background(), "UC1")

	require.NoError(t, err)
	assert.Equal(t, int64(40), report.Rows[models.VideoDailyStatsTableName])
	require.Len(t, h.store.videoDaily, 40)
	for i, r := range h.store.videoDaily {
		assert.Equal(t, uploads[i], r.VideoID, "rows keep upload order")
	}
}

func TestIngestChannel_VideoFailureFailsChannel(t *testing.T) {
	h := newHarness()
	boom := errors.New("analytics 500")
	h.fetcher.videoErr = map[string]error{"v2": boom}
	cfg := DefaultConfig()
	cfg.VideoWorkers = 3
	ing := h.ingester(cfg)

	_, err := ing.IngestChannel(context.Background(), "UC1")

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.store.videoDaily)
	assert.Empty(t, h.maint.calls)
}

func TestIngestChannel_RetentionNone(t *testing.T) {
	h := newHarness()
	cfg := DefaultConfig()
	cfg.RetentionMode = retention.ModeNone
	ing := h.ingester(cfg)

	report, err := ing.IngestChannel(context.Background(), "UC2")

	require.NoError(t, err)
	assert.Nil(t, report.Retention)
	assert.Empty(t, h.maint.calls)
}

func TestIngestChannel_NoUploadsPlaylist(t *testing.T) {
	h := newHarness()
	h.fetcher.channels["UC9"] = &yt.Channel{Id: "UC9"}
	ing := h.ingester(DefaultConfig())

	report, err := ing.IngestChannel(context.Background(), "UC9")

	require.NoError(t, err)
	assert.Zero(t, report.Uploads)
	assert.Empty(t, h.fetcher.videoCalls)
	assert.Equal(t, int64(1), report.Rows[models.ChannelDailyStatsTableName])
}

func TestRun_IsolatesFailures(t *testing.T) {
	h := newHarness()
	h.provider.denied["UC2"] = true
	ing := h.ingester(DefaultConfig())

	summary := ing.Run(context.Background(), []string{"UC1", "UC2", "missing", "UC3"})

	assert.False(t, summary.OK())
	require.Len(t, summary.Succeeded, 2)
	assert.Equal(t, "UC1", summary.Succeeded[0].ChannelID)
	assert.Equal(t, "UC3", summary.Succeeded[1].ChannelID)

	require.Len(t, summary.Failed, 2)
	assert.Equal(t, "UC2", summary.Failed[0].ChannelID)
	assert.Contains(t, summary.Failed[0].Error, "no oauth token")
	assert.Equal(t, "missing", summary.Failed[1].ChannelID)

	// UC2 wrote its channel and videos before the analytics client failed.
	assert.Equal(t, int64(3), summary.Rows[models.ChannelsTableName])
	assert.Equal(t, int64(6), summary.Rows[models.VideosTableName])
	assert.Equal(t, int64(5), summary.Rows[models.VideoDailyStatsTableName])
	assert.Equal(t, now, summary.StartedAt)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness()
	ing := h.ingester(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := ing.Run(ctx, []string{"UC1", "UC2"})

	assert.Empty(t, summary.Succeeded)
	assert.Len(t, summary.Failed, 2)
	assert.Empty(t, h.store.channels)
}

// Package youtube wraps the YouTube Data and Analytics APIs behind small
// interfaces and adds retrying, batched fetches on top of them.
package youtube

import (
	"context"
	"time"

	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"
)

const (
	// PageSize is the largest page playlistItems.list will return.
	PageSize = 50
	// BatchSize is the most ids videos.list accepts per call.
	BatchSize = 50
)

// Analytics metrics requested per report.
var (
	ChannelMetrics = []string{"views", "subscribersGained", "subscribersLost", "estimatedMinutesWatched"}
	VideoMetrics   = []string{"views", "likes", "comments", "shares", "averageViewDuration", "averageViewPercentage", "estimatedMinutesWatched"}
	DailyDimension = []string{"day"}
)

// DataAPI is the subset of the public Data API the warehouse reads.
type DataAPI interface {
	// Channel returns nil with no error when the channel does not exist.
	Channel(ctx context.Context, channelID string) (*yt.Channel, error)
	PlaylistItems(ctx context.Context, playlistID, pageToken string, size int64) (*yt.PlaylistItemListResponse, error)
	Videos(ctx context.Context, ids []string) ([]*yt.Video, error)
}

// ReportQuery is one Analytics reports.query request.
type ReportQuery struct {
	ChannelID  string
	Start      time.Time
	End        time.Time
	Metrics    []string
	Dimensions []string
	Filters    string
}

// AnalyticsAPI runs reports on behalf of a single authorized channel.
type AnalyticsAPI interface {
	Query(ctx context.Context, q ReportQuery) (*ya.QueryResponse, error)
}

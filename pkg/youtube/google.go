package youtube

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"
)

const reportDateLayout = "2006-01-02"

// GoogleData implements DataAPI over the youtube/v3 client with an API key.
type GoogleData struct {
	svc *yt.Service
}

func NewData(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GoogleData, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube data client: %w", err)
	}
	return &GoogleData{svc: svc}, nil
}

func (g *GoogleData) Channel(ctx context.Context, channelID string) (*yt.Channel, error) {
	resp, err := g.svc.Channels.
		List([]string{"snippet", "statistics", "contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return resp.Items[0], nil
}

func (g *GoogleData) PlaylistItems(ctx context.Context, playlistID, pageToken string, size int64) (*yt.PlaylistItemListResponse, error) {
	call := g.svc.PlaylistItems.
		List([]string{"contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(size).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (g *GoogleData) Videos(ctx context.Context, ids []string) ([]*yt.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	resp, err := g.svc.Videos.
		List([]string{"snippet"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GoogleAnalytics implements AnalyticsAPI over youtubeanalytics/v2 using a
// channel owner's OAuth token source.
type GoogleAnalytics struct {
	svc *ya.Service
}

func NewAnalytics(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*GoogleAnalytics, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := ya.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube analytics client: %w", err)
	}
	return &GoogleAnalytics{svc: svc}, nil
}

func (g *GoogleAnalytics) Query(ctx context.Context, q ReportQuery) (*ya.QueryResponse, error) {
	call := g.svc.Reports.Query().
		Ids("channel==" + q.ChannelID).
		StartDate(q.Start.Format(reportDateLayout)).
		EndDate(q.End.Format(reportDateLayout)).
		Metrics(strings.Join(q.Metrics, ","))
	if len(q.Dimensions) > 0 {
		call = call.Dimensions(strings.Join(q.Dimensions, ","))
	}
	if q.Filters != "" {
		call = call.Filters(q.Filters)
	}
	return call.Context(ctx).Do()
}

package transform

import (
	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

// AnalyticsResult holds normalized daily rows and the number of rows dropped
// because their day could not be parsed.
type AnalyticsResult[T any] struct {
	Rows    []T
	Dropped int
}

// ChannelDaily converts a channel-level daily report into ChannelDailyStat rows.
func ChannelDaily(resp *youtubeanalytics.QueryResponse, channelID string) AnalyticsResult[*models.ChannelDailyStat] {
	var res AnalyticsResult[*models.ChannelDailyStat]
	if resp == nil || len(resp.Rows) == 0 {
		return res
	}

	idx := NewColumnIndex(resp.ColumnHeaders)
	res.Rows = make([]*models.ChannelDailyStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		day, ok := idx.Day(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Rows = append(res.Rows, &models.ChannelDailyStat{
			ChannelID:               channelID,
			Date:                    day,
			Views:                   idx.Int(row, ColViews),
			SubsGained:              idx.Int(row, ColSubscribersGained),
			SubsLost:                idx.Int(row, ColSubscribersLost),
			EstimatedMinutesWatched: idx.Float(row, ColEstimatedMinutesWatched),
		})
	}
	return res
}

// VideoDaily converts a video-level daily report into VideoDailyStat rows.
func VideoDaily(resp *youtubeanalytics.QueryResponse, videoID string) AnalyticsResult[*models.VideoDailyStat] {
	var res AnalyticsResult[*models.VideoDailyStat]
	if resp == nil || len(resp.Rows) == 0 {
		return res
	}

	idx := NewColumnIndex(resp.ColumnHeaders)
	res.Rows = make([]*models.VideoDailyStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		day, ok := idx.Day(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Rows = append(res.Rows, &models.VideoDailyStat{
			VideoID:         videoID,
			Date:            day,
			Views:           idx.Int(row, ColViews),
			Likes:           idx.Int(row, ColLikes),
			Comments:        idx.Int(row, ColComments),
			Shares:          idx.Int(row, ColShares),
			WatchTime:       idx.Float(row, ColEstimatedMinutesWatched),
			AvgViewDuration: idx.Float(row, ColAverageViewDuration),
			AvgViewPercent:  idx.Float(row, ColAverageViewPercentage),
		})
	}
	return res
}

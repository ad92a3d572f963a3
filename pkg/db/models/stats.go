package models

import "time"

const (
	ChannelDailyStatsTableName = "channel_daily_stats"
	VideoDailyStatsTableName   = "video_daily_stats"
	VideoMonthlyStatsTableName = "video_monthly_stats"
)

var ChannelDailyStatColumns = []ColumnDef{
	{Name: "channel_id", Type: "TEXT NOT NULL"},
	{Name: "date", Type: "DATE NOT NULL"},
	{Name: "views", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "subs_gained", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "subs_lost", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "estimated_minutes_watched", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "ingested_at", Type: "TIMESTAMPTZ NOT NULL DEFAULT now()", Touch: true},
}

var ChannelDailyStatsTable = Table{
	Name:    ChannelDailyStatsTableName,
	Columns: ChannelDailyStatColumns,
	Key:     []string{"channel_id", "date"},
}

type ChannelDailyStat struct {
	ChannelID               string    `db:"channel_id" json:"channel_id"`
	Date                    time.Time `db:"date" json:"date"`
	Views                   int64     `db:"views" json:"views"`
	SubsGained              int64     `db:"subs_gained" json:"subs_gained"`
	SubsLost                int64     `db:"subs_lost" json:"subs_lost"`
	EstimatedMinutesWatched float64   `db:"estimated_minutes_watched" json:"estimated_minutes_watched"`
}

func (s *ChannelDailyStat) Values() []any {
	return []any{s.ChannelID, s.Date, s.Views, s.SubsGained, s.SubsLost, s.EstimatedMinutesWatched}
}

// VideoDailyStat is the high volume, retention-bounded table.
var VideoDailyStatColumns = []ColumnDef{
	{Name: "video_id", Type: "TEXT NOT NULL"},
	{Name: "date", Type: "DATE NOT NULL"},
	{Name: "views", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "likes", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "comments", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "shares", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "watch_time", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "avg_view_duration", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "avg_view_percent", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "ingested_at", Type: "TIMESTAMPTZ NOT NULL DEFAULT now()", Touch: true},
}

var VideoDailyStatsTable = Table{
	Name:    VideoDailyStatsTableName,
	Columns: VideoDailyStatColumns,
	Key:     []string{"video_id", "date"},
}

type VideoDailyStat struct {
	VideoID         string    `db:"video_id" json:"video_id"`
	Date            time.Time `db:"date" json:"date"`
	Views           int64     `db:"views" json:"views"`
	Likes           int64     `db:"likes" json:"likes"`
	Comments        int64     `db:"comments" json:"comments"`
	Shares          int64     `db:"shares" json:"shares"`
	WatchTime       float64   `db:"watch_time" json:"watch_time"`               // minutes
	AvgViewDuration float64   `db:"avg_view_duration" json:"avg_view_duration"` // seconds
	AvgViewPercent  float64   `db:"avg_view_percent" json:"avg_view_percent"`
}

func (s *VideoDailyStat) Values() []any {
	return []any{s.VideoID, s.Date, s.Views, s.Likes, s.Comments, s.Shares, s.WatchTime, s.AvgViewDuration, s.AvgViewPercent}
}

// VideoMonthlyStat keys on the first day of the month. Days counts the daily
// rows folded in so averages can be recombined when a month is rolled up in
// more than one pass. Rows are written only by the rollup SQL.
var VideoMonthlyStatColumns = []ColumnDef{
	{Name: "video_id", Type: "TEXT NOT NULL"},
	{Name: "month", Type: "DATE NOT NULL"},
	{Name: "views", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "likes", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "comments", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "shares", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "watch_time", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "avg_view_duration", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "avg_view_percent", Type: "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{Name: "days", Type: "INTEGER NOT NULL DEFAULT 0"},
	{Name: "rolled_up_at", Type: "TIMESTAMPTZ NOT NULL DEFAULT now()", Touch: true},
}

var VideoMonthlyStatsTable = Table{
	Name:    VideoMonthlyStatsTableName,
	Columns: VideoMonthlyStatColumns,
	Key:     []string{"video_id", "month"},
}

type VideoMonthlyStat struct {
	VideoID         string    `db:"video_id" json:"video_id"`
	Month           time.Time `db:"month" json:"month"`
	Views           int64     `db:"views" json:"views"`
	Likes           int64     `db:"likes" json:"likes"`
	Comments        int64     `db:"comments" json:"comments"`
	Shares          int64     `db:"shares" json:"shares"`
	WatchTime       float64   `db:"watch_time" json:"watch_time"`
	AvgViewDuration float64   `db:"avg_view_duration" json:"avg_view_duration"`
	AvgViewPercent  float64   `db:"avg_view_percent" json:"avg_view_percent"`
	Days            int32     `db:"days" json:"days"`
}

// Tables lists every warehouse table in creation order.
var Tables = []Table{
	ChannelsTable,
	VideosTable,
	ChannelDailyStatsTable,
	VideoDailyStatsTable,
	VideoMonthlyStatsTable,
}

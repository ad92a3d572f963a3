package models

import "time"

const VideosTableName = "videos"

// Thumbnail classifications inferred from the thumbnail variants a video exposes.
const (
	ThumbnailCustom  = "custom"
	ThumbnailDefault = "default"
	ThumbnailUnknown = "unknown"
)

var VideoColumns = []ColumnDef{
	{Name: "video_id", Type: "TEXT NOT NULL"},
	// channel_id is not a foreign key; videos may land before their channel row.
	{Name: "channel_id", Type: "TEXT NOT NULL"},
	{Name: "title", Type: "TEXT NOT NULL DEFAULT ''"},
	{Name: "description", Type: "TEXT NOT NULL DEFAULT ''"},
	{Name: "tags", Type: "TEXT"},
	{Name: "thumbnail_type", Type: "TEXT NOT NULL"},
	{Name: "published_at", Type: "TIMESTAMPTZ"},
	{Name: "last_updated_at", Type: "TIMESTAMPTZ NOT NULL DEFAULT now()", Touch: true},
}

var VideosTable = Table{
	Name:    VideosTableName,
	Columns: VideoColumns,
	Key:     []string{"video_id"},
}

type Video struct {
	VideoID       string     `db:"video_id" json:"video_id"`
	ChannelID     string     `db:"channel_id" json:"channel_id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	Tags          *string    `db:"tags" json:"tags,omitempty"` // comma joined
	ThumbnailType string     `db:"thumbnail_type" json:"thumbnail_type"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
}

func (v *Video) Values() []any {
	return []any{v.VideoID, v.ChannelID, v.Title, v.Description, v.Tags, v.ThumbnailType, v.PublishedAt}
}

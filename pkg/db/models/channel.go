package models

import "time"

const ChannelsTableName = "channels"

var ChannelColumns = []ColumnDef{
	{Name: "channel_id", Type: "TEXT NOT NULL"},
	{Name: "title", Type: "TEXT NOT NULL"},
	{Name: "subscribers", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "total_views", Type: "BIGINT NOT NULL DEFAULT 0"},
	{Name: "created_at", Type: "DATE"},
	{Name: "last_updated_at", Type: "TIMESTAMPTZ NOT NULL DEFAULT now()", Touch: true},
}

var ChannelsTable = Table{
	Name:    ChannelsTableName,
	Columns: ChannelColumns,
	Key:     []string{"channel_id"},
}

// Channel is one row per channel, overwritten in place on each ingest.
type Channel struct {
	ChannelID   string     `db:"channel_id" json:"channel_id"`
	Title       string     `db:"title" json:"title"`
	Subscribers int64      `db:"subscribers" json:"subscribers"`
	TotalViews  int64      `db:"total_views" json:"total_views"`
	CreatedAt   *time.Time `db:"created_at" json:"created_at,omitempty"` // calendar date, UTC
}

func (c *Channel) Values() []any {
	return []any{c.ChannelID, c.Title, c.Subscribers, c.TotalViews, c.CreatedAt}
}

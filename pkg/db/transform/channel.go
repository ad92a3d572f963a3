package transform

import (
	"google.golang.org/api/youtube/v3"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

// Channel converts a channels.list item to the database Channel model.
// Returns false when the API returned nothing usable (no item or no id).
func Channel(raw *youtube.Channel) (*models.Channel, bool) {
	if raw == nil || raw.Id == "" {
		return nil, false
	}

	ch := &models.Channel{ChannelID: raw.Id}
	if raw.Snippet != nil {
		ch.Title = raw.Snippet.Title
		if ts := ParseTimestamp(raw.Snippet.PublishedAt); ts != nil {
			day := TruncateDay(*ts)
			ch.CreatedAt = &day
		}
	}
	if raw.Statistics != nil {
		ch.Subscribers = clampUint(raw.Statistics.SubscriberCount)
		ch.TotalViews = clampUint(raw.Statistics.ViewCount)
	}
	return ch, true
}

// UploadsPlaylist returns the id of the channel's uploads playlist, or "".
func UploadsPlaylist(raw *youtube.Channel) string {
	if raw == nil || raw.ContentDetails == nil || raw.ContentDetails.RelatedPlaylists == nil {
		return ""
	}
	return raw.ContentDetails.RelatedPlaylists.Uploads
}

func clampUint(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}
	return int64(v)
}

package transform

import (
	"strings"

	"google.golang.org/api/youtube/v3"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

// Videos converts videos.list items to database Video models, stamping each
// with channelID. Items without an id are skipped.
func Videos(raw []*youtube.Video, channelID string) []*models.Video {
	out := make([]*models.Video, 0, len(raw))
	for _, item := range raw {
		if v := Video(item, channelID); v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Video converts a single videos.list item. Returns nil when the item has no id.
func Video(raw *youtube.Video, channelID string) *models.Video {
	if raw == nil || raw.Id == "" {
		return nil
	}

	v := &models.Video{
		VideoID:       raw.Id,
		ChannelID:     channelID,
		ThumbnailType: models.ThumbnailUnknown,
	}
	if raw.Snippet == nil {
		return v
	}

	sn := raw.Snippet
	if v.ChannelID == "" {
		v.ChannelID = sn.ChannelId
	}
	v.Title = sn.Title
	v.Description = sn.Description
	v.Tags = joinTags(sn.Tags)
	v.ThumbnailType = Thumbnail(sn.Thumbnails)
	v.PublishedAt = ParseTimestamp(sn.PublishedAt)
	return v
}

func joinTags(tags []string) *string {
	if len(tags) == 0 {
		return nil
	}
	joined := strings.Join(tags, ",")
	return &joined
}

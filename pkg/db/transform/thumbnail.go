package transform

import (
	"google.golang.org/api/youtube/v3"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

// Thumbnail classifies a video's thumbnail set. Only uploader-provided images
// produce the maxres and standard variants.
func Thumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return models.ThumbnailUnknown
	}
	switch {
	case t.Maxres != nil || t.Standard != nil:
		return models.ThumbnailCustom
	case t.Default != nil || t.Medium != nil || t.High != nil:
		return models.ThumbnailDefault
	default:
		return models.ThumbnailUnknown
	}
}

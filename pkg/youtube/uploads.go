package youtube

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	yt "google.golang.org/api/youtube/v3"

	"github.com/canopy-network/ytwarehouse/pkg/retry"
)

// CollectOptions bounds an uploads playlist walk.
type CollectOptions struct {
	// Known stops the walk at the first id already in the warehouse.
	Known map[string]struct{}
	// MaxPages caps the number of pages requested. Zero means no cap.
	MaxPages int
}

// UploadIDs walks an uploads playlist newest first and returns video ids.
//
// The walk stops at the first known id (which is excluded), when there is no
// next page, or after MaxPages pages. A 404 for the playlist yields no ids.
func (f *Fetcher) UploadIDs(ctx context.Context, playlistID string, opts CollectOptions) ([]string, error) {
	var (
		ids   []string
		token string
		pages int
	)

	for {
		page, err := retry.Do(ctx, f.policy, "playlistItems.list", func(ctx context.Context) (*yt.PlaylistItemListResponse, error) {
			return f.data.PlaylistItems(ctx, playlistID, token, PageSize)
		})
		if err != nil {
			if IsNotFound(err) {
				f.logger.Warn("Uploads playlist not found",
					zap.String("playlist_id", playlistID),
					zap.Int("page", pages+1))
				return []string{}, nil
			}
			return nil, fmt.Errorf("list playlist %s page %d: %w", playlistID, pages+1, err)
		}
		pages++

		for _, item := range page.Items {
			if item == nil || item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			id := item.ContentDetails.VideoId
			if _, known := opts.Known[id]; known {
				f.logger.Debug("Reached known upload, stopping walk",
					zap.String("playlist_id", playlistID),
					zap.String("video_id", id),
					zap.Int("pages", pages),
					zap.Int("collected", len(ids)))
				return nonNil(ids), nil
			}
			ids = append(ids, id)
		}

		token = page.NextPageToken
		if token == "" {
			break
		}
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			break
		}
	}

	return nonNil(ids), nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
	"github.com/canopy-network/ytwarehouse/pkg/metrics"
)

// Store is the warehouse: typed upserts, the known-upload lookup and retention SQL.
type Store struct {
	Client
}

// NewStore connects to dbURL. Call InitializeDB before first use on a fresh database.
func NewStore(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig *PoolConfig) (*Store, error) {
	client, err := New(ctx, logger.With(zap.String("component", "warehouse")), dbURL, poolConfig)
	if err != nil {
		return nil, err
	}
	return &Store{Client: client}, nil
}

func upsertCounted[R models.Row](ctx context.Context, s *Store, table models.Table, rows []R) (int64, error) {
	n, err := Upsert(ctx, &s.Client, table, rows)
	if err != nil {
		return 0, err
	}
	metrics.RowsUpserted.WithLabelValues(table.Name).Add(float64(n))
	return n, nil
}

func (s *Store) UpsertChannels(ctx context.Context, rows []*models.Channel) (int64, error) {
	return upsertCounted(ctx, s, models.ChannelsTable, rows)
}

func (s *Store) UpsertVideos(ctx context.Context, rows []*models.Video) (int64, error) {
	return upsertCounted(ctx, s, models.VideosTable, rows)
}

func (s *Store) UpsertChannelDaily(ctx context.Context, rows []*models.ChannelDailyStat) (int64, error) {
	return upsertCounted(ctx, s, models.ChannelDailyStatsTable, rows)
}

func (s *Store) UpsertVideoDaily(ctx context.Context, rows []*models.VideoDailyStat) (int64, error) {
	return upsertCounted(ctx, s, models.VideoDailyStatsTable, rows)
}

// RecentVideoIDs returns the ids of videos stored for channelID, newest
// published first. A limit of zero or less returns all of them.
func (s *Store) RecentVideoIDs(ctx context.Context, channelID string, limit int) ([]string, error) {
	query := `SELECT video_id FROM videos WHERE channel_id = $1 ORDER BY published_at DESC NULLS LAST, video_id`
	args := []any{channelID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known videos for %s: %w", channelID, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known video: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known videos for %s: %w", channelID, err)
	}
	return ids, nil
}

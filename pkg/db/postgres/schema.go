package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_videos_channel_id ON videos (channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_video_daily_stats_date ON video_daily_stats (date)`,
}

// InitializeDB ensures the warehouse tables and their supporting indexes exist.
func (s *Store) InitializeDB(ctx context.Context) error {
	for _, table := range models.Tables {
		s.Logger.Debug("Initialize table", zap.String("table", table.Name))
		if err := s.Exec(ctx, table.CreateSQL()); err != nil {
			return fmt.Errorf("create table %s: %w", table.Name, err)
		}
	}
	for _, idx := range indexes {
		if err := s.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	s.Logger.Info("Warehouse schema ready", zap.Int("tables", len(models.Tables)))
	return nil
}

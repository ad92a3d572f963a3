package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// RollupResult reports what a rollup pass wrote and removed.
type RollupResult struct {
	Groups    int64 // monthly rows inserted or merged
	DailyRows int64 // daily rows deleted
}

// rollupSQL folds daily rows older than $1 into monthly buckets. An existing
// monthly row is merged: sums and day counts add up, and the means are
// recombined weighted by the day counts on each side.
const rollupSQL = `
	INSERT INTO video_monthly_stats (
		video_id, month, views, likes, comments, shares, watch_time,
		avg_view_duration, avg_view_percent, days, rolled_up_at
	)
	SELECT
		video_id,
		date_trunc('month', date::timestamp)::date AS month,
		SUM(views), SUM(likes), SUM(comments), SUM(shares), SUM(watch_time),
		AVG(avg_view_duration), AVG(avg_view_percent), COUNT(*), now()
	FROM video_daily_stats
	WHERE date < $1
	GROUP BY video_id, date_trunc('month', date::timestamp)::date
	ON CONFLICT (video_id, month) DO UPDATE SET
		views = video_monthly_stats.views + EXCLUDED.views,
		likes = video_monthly_stats.likes + EXCLUDED.likes,
		comments = video_monthly_stats.comments + EXCLUDED.comments,
		shares = video_monthly_stats.shares + EXCLUDED.shares,
		watch_time = video_monthly_stats.watch_time + EXCLUDED.watch_time,
		avg_view_duration = COALESCE(
			(video_monthly_stats.avg_view_duration * video_monthly_stats.days
				+ EXCLUDED.avg_view_duration * EXCLUDED.days)
			/ NULLIF(video_monthly_stats.days + EXCLUDED.days, 0), 0),
		avg_view_percent = COALESCE(
			(video_monthly_stats.avg_view_percent * video_monthly_stats.days
				+ EXCLUDED.avg_view_percent * EXCLUDED.days)
			/ NULLIF(video_monthly_stats.days + EXCLUDED.days, 0), 0),
		days = video_monthly_stats.days + EXCLUDED.days,
		rolled_up_at = now()
`

const pruneSQL = `DELETE FROM video_daily_stats WHERE date < $1`

// RollupVideoDaily aggregates daily rows dated before cutoff into monthly rows
// and deletes them, inside one REPEATABLE READ transaction so the delete
// removes exactly the rows that were aggregated.
func (s *Store) RollupVideoDaily(ctx context.Context, cutoff time.Time) (RollupResult, error) {
	var res RollupResult
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	err := s.BeginTxFunc(ctx, opts, func(tx pgx.Tx) error {
		txCtx := s.WithTx(ctx, tx)

		tag, err := s.GetExecutor(txCtx).Exec(txCtx, rollupSQL, cutoff)
		if err != nil {
			return fmt.Errorf("aggregate video_daily_stats: %w", err)
		}
		res.Groups = tag.RowsAffected()
		if res.Groups == 0 {
			return nil
		}

		res.DailyRows, err = s.PruneVideoDaily(txCtx, cutoff)
		return err
	})
	if err != nil {
		return RollupResult{}, err
	}
	return res, nil
}

// PruneVideoDaily deletes daily rows dated before cutoff, inside the
// transaction carried by ctx when there is one.
func (s *Store) PruneVideoDaily(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.GetExecutor(ctx).Exec(ctx, pruneSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune video_daily_stats: %w", err)
	}
	return tag.RowsAffected(), nil
}

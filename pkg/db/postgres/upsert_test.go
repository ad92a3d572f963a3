package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
)

func TestBuildUpsertSQL(t *testing.T) {
	sql := buildUpsertSQL(models.ChannelDailyStatsTable, 2)

	assert.Equal(t,
		"INSERT INTO channel_daily_stats (channel_id, date, views, subs_gained, subs_lost, estimated_minutes_watched, ingested_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, now()), ($7, $8, $9, $10, $11, $12, now()) "+
			"ON CONFLICT (channel_id, date) DO UPDATE SET "+
			"views = EXCLUDED.views, subs_gained = EXCLUDED.subs_gained, subs_lost = EXCLUDED.subs_lost, "+
			"estimated_minutes_watched = EXCLUDED.estimated_minutes_watched, ingested_at = now()",
		sql)
}

func TestBuildUpsertSQL_KeyColumnsAreNotUpdated(t *testing.T) {
	sql := buildUpsertSQL(models.VideosTable, 1)

	_, set, ok := strings.Cut(sql, "DO UPDATE SET ")
	require.True(t, ok)
	assert.NotContains(t, set, "video_id =")
	assert.Contains(t, set, "channel_id = EXCLUDED.channel_id")
	assert.Contains(t, set, "last_updated_at = now()")
}

func TestBuildUpsertSQL_AllKeyColumns(t *testing.T) {
	table := models.Table{
		Name:    "tags",
		Columns: []models.ColumnDef{{Name: "tag", Type: "TEXT NOT NULL"}},
		Key:     []string{"tag"},
	}
	assert.Equal(t, "INSERT INTO tags (tag) VALUES ($1) ON CONFLICT (tag) DO NOTHING", buildUpsertSQL(table, 1))
}

func TestDedupeByKey_LastWriterWins(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	rows := []*models.VideoDailyStat{
		{VideoID: "a", Date: d1, Views: 1},
		{VideoID: "b", Date: d1, Views: 2},
		{VideoID: "a", Date: d2, Views: 3},
		{VideoID: "a", Date: d1, Views: 9},
	}

	out, err := dedupeByKey(models.VideoDailyStatsTable, rows)

	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0][0])
	assert.Equal(t, int64(9), out[0][2])
	assert.Equal(t, "b", out[1][0])
	assert.Equal(t, d2, out[2][1])
}

type shortRow struct{}

func (shortRow) Values() []any { return []any{"only-one"} }

func TestDedupeByKey_RejectsMisalignedRows(t *testing.T) {
	_, err := dedupeByKey(models.ChannelsTable, []shortRow{{}})
	assert.ErrorContains(t, err, "want 5")
}

func TestPerStatementChunkStaysUnderParamLimit(t *testing.T) {
	for _, table := range models.Tables {
		width := len(table.ValueColumns())
		per := maxBindParams / width
		assert.LessOrEqual(t, per*width, maxBindParams, table.Name)
		assert.Positive(t, per, table.Name)
	}
}

func TestCreateSQL(t *testing.T) {
	sql := models.VideoMonthlyStatsTable.CreateSQL()
	assert.True(t, strings.HasPrefix(sql, "CREATE TABLE IF NOT EXISTS video_monthly_stats ("))
	assert.Contains(t, sql, "days INTEGER NOT NULL DEFAULT 0")
	assert.Contains(t, sql, "PRIMARY KEY (video_id, month)")
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/canopy-network/ytwarehouse/pkg/db/models"
	"github.com/canopy-network/ytwarehouse/pkg/utils"
)

// maxBindParams is the Postgres wire protocol limit on parameters per statement.
const maxBindParams = 65535

// Upsert writes rows into table keyed by table.Key, overwriting the non-key
// columns of existing rows. Rows sharing a key are collapsed first, last one
// wins, because a single ON CONFLICT statement cannot touch the same row twice.
//
// The batch is written in one transaction (or the one already carried by ctx),
// as many multi-row statements as the parameter limit requires. It returns the
// number of rows inserted or updated.
func Upsert[R models.Row](ctx context.Context, c *Client, table models.Table, rows []R) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values, err := dedupeByKey(table, rows)
	if err != nil {
		return 0, err
	}

	width := len(table.ValueColumns())
	perStatement := maxBindParams / width

	var total int64
	write := func(exec Executor) error {
		for _, chunk := range utils.Chunk(values, perStatement) {
			args := make([]any, 0, len(chunk)*width)
			for _, v := range chunk {
				args = append(args, v...)
			}
			tag, err := exec.Exec(ctx, buildUpsertSQL(table, len(chunk)), args...)
			if err != nil {
				return fmt.Errorf("upsert %d rows into %s: %w", len(chunk), table.Name, err)
			}
			total += tag.RowsAffected()
		}
		return nil
	}

	if tx, ok := txFromContext(ctx); ok {
		err = write(tx)
	} else {
		err = c.BeginFunc(ctx, func(tx pgx.Tx) error { return write(tx) })
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// dedupeByKey returns each row's values, collapsing rows that share a key into
// the position of the first occurrence with the values of the last.
func dedupeByKey[R models.Row](table models.Table, rows []R) ([][]any, error) {
	keyPos, err := table.KeyPositions()
	if err != nil {
		return nil, err
	}
	width := len(table.ValueColumns())

	out := make([][]any, 0, len(rows))
	seen := make(map[string]int, len(rows))
	var kb strings.Builder
	for _, r := range rows {
		vals := r.Values()
		if len(vals) != width {
			return nil, fmt.Errorf("table %s: row has %d values, want %d", table.Name, len(vals), width)
		}

		kb.Reset()
		for _, p := range keyPos {
			fmt.Fprintf(&kb, "%v\x00", vals[p])
		}
		key := kb.String()

		if i, dup := seen[key]; dup {
			out[i] = vals
			continue
		}
		seen[key] = len(out)
		out = append(out, vals)
	}
	return out, nil
}

// buildUpsertSQL renders a multi-row INSERT ... ON CONFLICT DO UPDATE for n rows.
func buildUpsertSQL(table models.Table, n int) string {
	valueCols := table.ValueColumns()
	touchCols := table.TouchColumns()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(append(append([]string{}, valueCols...), touchCols...), ", "))
	b.WriteString(") VALUES ")

	param := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range valueCols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		for range touchCols {
			b.WriteString(", now()")
		}
		b.WriteByte(')')
	}

	isKey := make(map[string]bool, len(table.Key))
	for _, k := range table.Key {
		isKey[k] = true
	}
	var sets []string
	for _, col := range valueCols {
		if !isKey[col] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	for _, col := range touchCols {
		sets = append(sets, fmt.Sprintf("%s = now()", col))
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(table.Key, ", "))
	if len(sets) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	return b.String()
}

// Package retention bounds the size of the video daily table, either by
// folding old rows into monthly aggregates or by deleting them.
package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/db/postgres"
	"github.com/canopy-network/ytwarehouse/pkg/metrics"
)

// ErrInvalidWindow is returned for a retention window shorter than one day.
var ErrInvalidWindow = errors.New("retention window must be at least 1 day")

// Mode selects what maintenance does with rows outside the window.
type Mode string

const (
	ModePrune  Mode = "prune"
	ModeRollup Mode = "rollup"
	ModeNone   Mode = "none"
)

// ParseMode accepts prune, rollup or none, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePrune, ModeRollup, ModeNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown retention mode %q", s)
	}
}

// Store is the warehouse side of retention.
type Store interface {
	RollupVideoDaily(ctx context.Context, cutoff time.Time) (postgres.RollupResult, error)
	PruneVideoDaily(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result summarizes one maintenance pass.
type Result struct {
	Mode      Mode      `json:"mode"`
	Cutoff    time.Time `json:"cutoff"`
	Groups    int64     `json:"monthly_rows"` // written by a rollup
	DailyRows int64     `json:"daily_rows_removed"`
}

type Engine struct {
	store  Store
	clock  clockwork.Clock
	logger *zap.Logger

	mu sync.Mutex
}

func NewEngine(store Store, clock clockwork.Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, clock: clock, logger: logger}
}

// Cutoff is today (UTC) minus retainDays. Rows dated strictly before it are
// outside the window.
func (e *Engine) Cutoff(retainDays int) (time.Time, error) {
	if retainDays < 1 {
		return time.Time{}, ErrInvalidWindow
	}
	now := e.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -retainDays), nil
}

// Rollup folds daily rows outside the window into monthly rows and removes them.
func (e *Engine) Rollup(ctx context.Context, retainDays int) (Result, error) {
	cutoff, err := e.Cutoff(retainDays)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.store.RollupVideoDaily(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("rollup before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	metrics.RetentionRows.WithLabelValues(string(ModeRollup)).Add(float64(res.DailyRows))
	e.logger.Info("Rolled up video daily stats",
		zap.Time("cutoff", cutoff),
		zap.Int64("monthly_rows", res.Groups),
		zap.Int64("daily_rows_removed", res.DailyRows))

	return Result{Mode: ModeRollup, Cutoff: cutoff, Groups: res.Groups, DailyRows: res.DailyRows}, nil
}

// Prune deletes daily rows outside the window.
func (e *Engine) Prune(ctx context.Context, retainDays int) (Result, error) {
	cutoff, err := e.Cutoff(retainDays)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.store.PruneVideoDaily(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("prune before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	if n < 0 {
		n = 0
	}
	metrics.RetentionRows.WithLabelValues(string(ModePrune)).Add(float64(n))
	e.logger.Info("Pruned video daily stats",
		zap.Time("cutoff", cutoff),
		zap.Int64("daily_rows_removed", n))

	return Result{Mode: ModePrune, Cutoff: cutoff, DailyRows: n}, nil
}

// Maintain runs the pass selected by mode.
func (e *Engine) Maintain(ctx context.Context, retainDays int, mode Mode) (Result, error) {
	switch mode {
	case ModePrune:
		return e.Prune(ctx, retainDays)
	case ModeRollup:
		return e.Rollup(ctx, retainDays)
	case ModeNone:
		return Result{Mode: ModeNone}, nil
	default:
		return Result{}, fmt.Errorf("unknown retention mode %q", mode)
	}
}

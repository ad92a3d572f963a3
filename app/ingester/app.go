package ingester

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/config"
	"github.com/canopy-network/ytwarehouse/pkg/db/postgres"
	"github.com/canopy-network/ytwarehouse/pkg/ingest"
	"github.com/canopy-network/ytwarehouse/pkg/oauth"
	"github.com/canopy-network/ytwarehouse/pkg/retention"
	"github.com/canopy-network/ytwarehouse/pkg/youtube"
)

// App wires the warehouse, the API clients and the scheduler. Each CronSpec
// tick ingests every configured channel.
type App struct {
	Config *config.Config

	Store     *postgres.Store
	Retention *retention.Engine
	Ingester  *ingest.Ingester

	// Cron triggers an ingest run according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// LastRun holds the latest outcome per channel, served on /status.
	LastRun     *xsync.Map[string, ChannelStatus]
	lastSummary atomic.Pointer[ingest.Summary]
	running     atomic.Bool
	background  sync.WaitGroup

	Logger *zap.Logger

	// Server is the HTTP server for health, status and metrics.
	Server *http.Server
}

// ErrRunInProgress is returned when an ingest is requested while another is running.
var ErrRunInProgress = errors.New("an ingest run is already in progress")

// ChannelStatus is the last known outcome for a channel.
type ChannelStatus struct {
	ChannelID  string           `json:"channel_id"`
	OK         bool             `json:"ok"`
	Error      string           `json:"error,omitempty"`
	TargetDay  time.Time        `json:"target_day,omitempty"`
	Rows       map[string]int64 `json:"rows,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// OpenWarehouse connects to the warehouse and builds the retention engine.
// It is all the maintenance commands need.
func OpenWarehouse(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := postgres.NewStore(ctx, logger, cfg.PostgresURL, postgres.DefaultPoolConfig("ingester"))
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	return &App{
		Config:    cfg,
		Store:     store,
		Retention: retention.NewEngine(store, clockwork.NewRealClock(), logger),
		CronSpec:  cfg.CronSpec,
		LastRun:   xsync.NewMap[string, ChannelStatus](),
		Logger:    logger,
	}, nil
}

// Initialize builds the full ingest stack on top of the warehouse.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := OpenWarehouse(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	data, err := youtube.NewData(ctx, cfg.APIKey)
	if err != nil {
		app.Close()
		return nil, err
	}
	tokens, err := oauth.NewStore(cfg.ClientSecretFile, cfg.TokensDir, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	fetcher := youtube.NewFetcher(data, cfg.RetryPolicy(logger), logger)
	app.Ingester = ingest.New(ingest.Config{
		LagDays:       cfg.LagDays,
		RetainDays:    cfg.RetainDays,
		MaxPages:      cfg.MaxPages,
		RetentionMode: cfg.RetentionMode,
		StopAtKnown:   cfg.StopAtKnown,
		VideoWorkers:  cfg.VideoWorkers,
	}, fetcher, oauth.NewProvider(tokens), app.Store, app.Retention, clockwork.NewRealClock(), logger)

	return app, nil
}

// RunOnce ingests channelIDs and records the outcome for /status. Only one
// run executes at a time; a concurrent call returns ErrRunInProgress.
func (a *App) RunOnce(ctx context.Context, channelIDs []string) (ingest.Summary, error) {
	if !a.running.CompareAndSwap(false, true) {
		return ingest.Summary{}, ErrRunInProgress
	}
	defer a.running.Store(false)

	summary := a.Ingester.Run(ctx, channelIDs)
	a.record(summary)
	return summary, nil
}

// RunInBackground starts RunOnce on its own goroutine. Start waits for it
// before closing the warehouse.
func (a *App) RunInBackground(ctx context.Context, channelIDs []string) {
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		a.runScheduled(ctx, channelIDs)
	}()
}

func (a *App) runScheduled(ctx context.Context, channelIDs []string) {
	if _, err := a.RunOnce(ctx, channelIDs); err != nil {
		a.Logger.Warn("Skipping ingest run", zap.Error(err))
	}
}

func (a *App) record(summary ingest.Summary) {
	for _, r := range summary.Succeeded {
		a.LastRun.Store(r.ChannelID, ChannelStatus{
			ChannelID:  r.ChannelID,
			OK:         true,
			TargetDay:  r.TargetDay,
			Rows:       r.Rows,
			FinishedAt: summary.FinishedAt,
		})
	}
	for _, f := range summary.Failed {
		a.LastRun.Store(f.ChannelID, ChannelStatus{
			ChannelID:  f.ChannelID,
			Error:      f.Error,
			FinishedAt: summary.FinishedAt,
		})
	}
	a.lastSummary.Store(&summary)
}

// Maintain runs retention alone, outside an ingest.
func (a *App) Maintain(ctx context.Context, retainDays int, mode retention.Mode) (retention.Result, error) {
	return a.Retention.Maintain(ctx, retainDays, mode)
}

// SetupScheduler sets up the cron scheduler.
func (a *App) SetupScheduler(ctx context.Context, cronSpec string) error {
	logger := cronLogger{a.Logger.Sugar()}
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	a.CronSpec = cronSpec

	_, err := a.Cron.AddFunc(cronSpec, func() {
		a.runScheduled(ctx, a.Config.ChannelIDs)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cronSpec, err)
	}
	return nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("cron_spec", a.CronSpec))
}

// StopCron stops the cron scheduler and waits for a running ingest to finish.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// Ready reports whether the warehouse answers.
func (a *App) Ready(ctx context.Context) bool {
	if a.Store == nil || a.Store.Pool == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.Store.Ping(pctx) == nil
}

// Close releases the warehouse pool.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// Start serves HTTP until ctx is done, then shuts everything down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Status server failed", zap.Error(err))
		}
	}()
	a.Logger.Info("Status server listening", zap.String("addr", a.Server.Addr))

	<-ctx.Done()
	a.Logger.Info("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(sctx)
	a.StopCron()
	a.background.Wait()
	a.Close()
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

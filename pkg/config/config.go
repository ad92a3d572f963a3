// Package config gathers ingester settings from the environment (and an
// optional .env file) into an explicit struct passed down to components.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/retention"
	"github.com/canopy-network/ytwarehouse/pkg/retry"
	"github.com/canopy-network/ytwarehouse/pkg/utils"
)

// ErrNoChannels is returned when an ingest is requested with no channels configured.
var ErrNoChannels = errors.New("no channels configured: set CHANNEL_IDS or CHANNEL_IDS_FILE")

type Config struct {
	PostgresURL      string
	APIKey           string
	ClientSecretFile string
	TokensDir        string

	ChannelIDs     []string
	ChannelIDsFile string

	LagDays       int
	RetainDays    int
	MaxPages      int
	RetentionMode retention.Mode
	StopAtKnown   bool
	VideoWorkers  int

	RetryMaxAttempts int
	RetryBackoffBase float64
	RetryJitter      float64

	CronSpec string
	Addr     string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	mode, err := retention.ParseMode(utils.Env("RETENTION_MODE", string(retention.ModePrune)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PostgresURL:      utils.Env("POSTGRES_URL", "postgres://localhost:5432/postgres"),
		APIKey:           os.Getenv("YOUTUBE_API_KEY"),
		ClientSecretFile: utils.Env("CLIENT_SECRET_FILE", "client_secret.json"),
		TokensDir:        utils.Env("TOKENS_DIR", "tokens"),
		ChannelIDsFile:   os.Getenv("CHANNEL_IDS_FILE"),
		LagDays:          utils.EnvInt("LAG_DAYS", 2),
		RetainDays:       utils.EnvInt("RETAIN_DAYS", 30),
		MaxPages:         utils.EnvInt("MAX_PAGES", 2),
		RetentionMode:    mode,
		StopAtKnown:      utils.EnvBool("STOP_AT_KNOWN", false),
		VideoWorkers:     utils.EnvInt("VIDEO_WORKERS", 1),
		RetryMaxAttempts: utils.EnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBackoffBase: utils.EnvFloat("RETRY_BACKOFF_BASE", 1.6),
		RetryJitter:      utils.EnvFloat("RETRY_JITTER", 0),
		CronSpec:         utils.Env("CRON_SPEC", "0 0 6 * * *"),
		Addr:             utils.Env("ADDR", ":3003"),
	}
	if cfg.RetentionMode != retention.ModeNone && cfg.RetainDays <= cfg.LagDays {
		return nil, fmt.Errorf("RETAIN_DAYS (%d) must exceed LAG_DAYS (%d) so ingested days are not already outside retention",
			cfg.RetainDays, cfg.LagDays)
	}
	if cfg.RetryJitter > 1 {
		return nil, fmt.Errorf("RETRY_JITTER must be within [0, 1], got %v", cfg.RetryJitter)
	}

	channels := utils.EnvList("CHANNEL_IDS")
	if cfg.ChannelIDsFile != "" {
		fromFile, err := ReadChannelFile(cfg.ChannelIDsFile)
		if err != nil {
			return nil, err
		}
		channels = append(channels, fromFile...)
	}
	cfg.ChannelIDs = utils.Dedup(channels)

	return cfg, nil
}

// RequireChannels returns ErrNoChannels when the channel list is empty.
func (c *Config) RequireChannels() error {
	if len(c.ChannelIDs) == 0 {
		return ErrNoChannels
	}
	return nil
}

// RetryPolicy builds the API retry policy from the configured knobs.
func (c *Config) RetryPolicy(logger *zap.Logger) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.RetryMaxAttempts
	p.Base = c.RetryBackoffBase
	p.Jitter = c.RetryJitter
	p.Logger = logger
	return p
}

// ReadChannelFile reads one channel id per line. Blank lines and lines
// starting with # are ignored, as is anything after an inline #.
func ReadChannelFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open channel file: %w", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read channel file %s: %w", path, err)
	}
	return ids, nil
}

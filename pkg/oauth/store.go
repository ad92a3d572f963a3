// Package oauth loads per-channel OAuth tokens for the Analytics API and
// keeps refreshed tokens on disk.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"
	ya "google.golang.org/api/youtubeanalytics/v2"
)

// ErrNoToken means no authorized token exists for a channel. Tokens are
// provisioned out of band; the ingester never starts a browser flow.
var ErrNoToken = errors.New("no oauth token for channel")

// Scopes requested for every channel token.
var Scopes = []string{ya.YtAnalyticsReadonlyScope, yt.YoutubeReadonlyScope}

// Store reads and writes <dir>/<channel_id>.json token files.
type Store struct {
	dir    string
	config *oauth2.Config
	logger *zap.Logger

	mu sync.Mutex // serializes token file writes
}

// NewStore loads the OAuth client configuration from clientSecretFile.
func NewStore(clientSecretFile, dir string, logger *zap.Logger) (*Store, error) {
	secret, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret %s: %w", clientSecretFile, err)
	}
	return NewStoreFromJSON(secret, dir, logger)
}

// NewStoreFromJSON builds a Store from client secret JSON bytes.
func NewStoreFromJSON(secret []byte, dir string, logger *zap.Logger) (*Store, error) {
	config, err := google.ConfigFromJSON(secret, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, config: config, logger: logger}, nil
}

func (s *Store) path(channelID string) (string, error) {
	if channelID == "" || strings.ContainsAny(channelID, `/\`) || channelID == "." || channelID == ".." {
		return "", fmt.Errorf("invalid channel id %q", channelID)
	}
	return filepath.Join(s.dir, channelID+".json"), nil
}

// Load returns the stored token for channelID, or ErrNoToken.
func (s *Store) Load(channelID string) (*oauth2.Token, error) {
	p, err := s.path(channelID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w %s", ErrNoToken, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", p, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", p, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w %s: token file is empty", ErrNoToken, channelID)
	}
	return &tok, nil
}

// Save writes tok for channelID, replacing any previous token atomically.
func (s *Store) Save(channelID string, tok *oauth2.Token) error {
	p, err := s.path(channelID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace token %s: %w", p, err)
	}
	return nil
}

// TokenSource returns a refreshing token source for channelID. Whenever the
// underlying source hands out a new access token it is written back to disk.
func (s *Store) TokenSource(ctx context.Context, channelID string) (oauth2.TokenSource, error) {
	tok, err := s.Load(channelID)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		base:      s.config.TokenSource(ctx, tok),
		store:     s,
		channelID: channelID,
		last:      tok.AccessToken,
	}, nil
}

type persistingSource struct {
	base      oauth2.TokenSource
	store     *Store
	channelID string

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token for %s: %w", p.channelID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(p.channelID, tok); err != nil {
			// The refreshed token is still usable for this run.
			p.store.logger.Warn("Failed to persist refreshed token",
				zap.String("channel_id", p.channelID),
				zap.Error(err))
		} else {
			p.store.logger.Debug("Persisted refreshed token", zap.String("channel_id", p.channelID))
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

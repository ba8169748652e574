package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Prismer-AI/Prismer/sdk/chatsync"
	"go.uber.org/zap"
)

// session is a client, an engine over it and the logger they share.
type session struct {
	cfg    *Config
	client *chatsync.Client
	engine *chatsync.Engine
	log    *zap.Logger
}

func (s *session) close() {
	s.engine.Stop()
	_ = s.log.Sync()
}

// getClient creates a client authenticated with the configured token.
func getClient(cfg *Config) (*chatsync.Client, error) {
	if cfg.Auth.Token == "" {
		return nil, errors.New("no token configured; run 'chatsync init' or set CHATSYNC_TOKEN")
	}
	var opts []chatsync.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, chatsync.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Default.RateLimit > 0 {
		opts = append(opts, chatsync.WithRateLimit(cfg.Default.RateLimit, 1))
	}
	return chatsync.NewClient(cfg.Auth.Token, opts...), nil
}

// openSession loads the effective config and builds a session. The engine
// is not started.
func openSession(extra ...chatsync.EngineOption) (*session, error) {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := getClient(cfg)
	if err != nil {
		return nil, err
	}
	interval, err := cfg.pollInterval()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Default.LogLevel, cfg.Default.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	userID := cfg.Default.UserID
	if userID == "" {
		userID = "me"
	}
	opts := []chatsync.EngineOption{chatsync.WithLogger(log)}
	if interval > 0 {
		opts = append(opts, chatsync.WithPollInterval(interval))
	}
	opts = append(opts, extra...)

	return &session{
		cfg:    cfg,
		client: client,
		engine: chatsync.NewEngine(client.API(), userID, opts...),
		log:    log,
	}, nil
}

// maskKey shows the first 6 and last 4 characters of a secret.
func maskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gigmarket/gigsync"
	"go.uber.org/zap"
)

// loadState opens the local state file.
func loadState() (*gigsync.LocalState, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	return gigsync.LoadLocalState(path)
}

// cliEnv bundles what most commands need.
type cliEnv struct {
	cfg    *Config
	state  *gigsync.LocalState
	client *gigsync.Client
	logger *zap.Logger
}

// getClient creates a client authenticated with the stored token.
// GIGSYNC_TOKEN overrides the stored one.
func getClient() (*cliEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	state, err := loadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	token := state.Token
	if v := os.Getenv("GIGSYNC_TOKEN"); v != "" {
		token = v
	}
	if token == "" {
		return nil, errors.New("no auth token. Run 'gigsync init <token>' first")
	}

	logger := newLogger()
	opts := []gigsync.ClientOption{gigsync.WithLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, gigsync.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Default.TimeoutSeconds > 0 {
		opts = append(opts, gigsync.WithTimeout(time.Duration(cfg.Default.TimeoutSeconds)*time.Second))
	}
	return &cliEnv{
		cfg:    cfg,
		state:  state,
		client: gigsync.NewClient(token, opts...),
		logger: logger,
	}, nil
}

// apiError renders REST failures the way the other commands print them.
func apiError(err error) error {
	var apiErr *gigsync.APIError
	if errors.As(err, &apiErr) {
		if errors.Is(err, gigsync.ErrUnauthorized) {
			return fmt.Errorf("API error: %s: %s (run 'gigsync init <token>' with a fresh token)", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("API error: %s: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("request failed: %w", err)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// maskKey shows the first 6 and last 4 characters of a token.
func maskKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

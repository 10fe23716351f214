package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SalonWatcher polls salon.yaml and hands every new version to Apply.
//
// A version is rejected when it fails to parse or Apply returns an error; the
// previous config then stays in effect and Reject is told why. A rejected
// file is not retried until its modification time changes again.
type SalonWatcher struct {
	Path     string
	Interval time.Duration
	Logger   *zerolog.Logger

	Apply  func(*SalonConfig) error
	Reject func(error)
}

// Start loads and applies the current file, then polls for changes until ctx
// is done. Failure of the initial load is returned instead of reported.
func (w *SalonWatcher) Start(ctx context.Context) error {
	if w.Path == "" {
		w.Path = "configs/salon.yaml"
	}
	if w.Interval <= 0 {
		w.Interval = 30 * time.Second
	}
	if w.Apply == nil {
		return fmt.Errorf("salon watcher: no apply function")
	}

	info, err := os.Stat(w.Path)
	if err != nil {
		return err
	}
	cfg, err := LoadSalonConfig(w.Path)
	if err != nil {
		return err
	}
	if err := w.Apply(cfg); err != nil {
		return fmt.Errorf("apply %s: %w", w.Path, err)
	}

	go w.loop(ctx, info.ModTime())
	return nil
}

func (w *SalonWatcher) loop(ctx context.Context, seen time.Time) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.Path)
			if err != nil || !info.ModTime().After(seen) {
				continue
			}
			seen = info.ModTime()
			if err := w.reload(); err != nil {
				w.reject(err)
			}
		}
	}
}

func (w *SalonWatcher) reload() error {
	cfg, err := LoadSalonConfig(w.Path)
	if err != nil {
		return err
	}
	if err := w.Apply(cfg); err != nil {
		return fmt.Errorf("apply %s: %w", w.Path, err)
	}
	if w.Logger != nil {
		w.Logger.Info().Str("config", cfg.String()).Msg("salon config reloaded")
	}
	return nil
}

func (w *SalonWatcher) reject(err error) {
	if w.Logger != nil {
		w.Logger.Warn().Err(err).Str("path", w.Path).Msg("salon config reload rejected")
	}
	if w.Reject != nil {
		w.Reject(err)
	}
}

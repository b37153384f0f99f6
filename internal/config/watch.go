package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchResources reloads resources.yaml on change and calls onUpdate with the
// latest config. It performs an initial load before entering the watch loop.
// A file that fails to load or validate is logged and skipped; the previous
// config stays in effect.
func WatchResources(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*ResourcesConfig)) error {
	if path == "" {
		path = "configs/resources.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadResourcesConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadResourcesConfig(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("Resources config rejected")
					continue
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}

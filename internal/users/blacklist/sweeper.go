// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package blacklist

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired entries are pruned.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically calls [Store.Cleanup].
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. Non-positive interval means [DefaultSweepInterval].
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run blocks until context is cancelled.
func (sweeper *Sweeper) Run(context context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweeper.sweep(context)
		case <-context.Done():
			return
		}
	}
}

func (sweeper *Sweeper) sweep(context context.Context) {
	removed, err := sweeper.store.Cleanup(context)
	if err != nil {
		sweeper.logger.WarnContext(context, "blacklist_sweep_failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		sweeper.logger.DebugContext(context, "blacklist_sweep_finished", slog.Int("removed", removed))
	}
}

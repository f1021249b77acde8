package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Autosave backoff bounds. After a failed drain the worker retries at an
// exponentially growing interval, capped below, instead of waiting for the
// next regular tick.
const (
	autosaveBackoffInitial = time.Second
	autosaveBackoffMax     = 5 * time.Minute
)

// autosaveLoop periodically drains the dirty ledger into the store. It runs
// on its own goroutine until Close. Persistence failures flip the facade
// into degraded mode and switch the loop to exponential backoff; the first
// successful drain restores health and the regular cadence.
func (pg *PersistentGraph) autosaveLoop() {
	defer close(pg.autosaveDone)

	interval := pg.config.Persistence.AutoSaveInterval()
	pg.logger.Info("autosave started", zap.Duration("interval", interval))

	backoff := autosaveBackoffInitial
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-pg.autosaveStop:
			pg.logger.Info("autosave stopped")
			return
		case <-timer.C:
		}

		err := pg.drainDirty(context.Background())
		if err != nil {
			pg.degraded.Store(true)
			pg.logger.Warn("autosave failed, backing off",
				zap.Error(err), zap.Duration("retry_in", backoff))
			timer.Reset(backoff)
			backoff *= 2
			if backoff > autosaveBackoffMax {
				backoff = autosaveBackoffMax
			}
			continue
		}

		pg.degraded.Store(false)
		backoff = autosaveBackoffInitial
		timer.Reset(interval)
	}
}

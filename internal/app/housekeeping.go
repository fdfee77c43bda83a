package app

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes revocation records whose tokens have expired.
type Purger interface {
	DeleteExpiredRevocations(ctx context.Context) (int64, error)
}

// Housekeeping periodically purges expired revocations from the SQLite
// ledger. Redis expires its own keys and needs none of this.
type Housekeeping struct {
	Purger   Purger
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping returns a stopped worker. A non-positive interval means
// one hour.
func NewHousekeeping(p Purger, logger *slog.Logger, interval time.Duration) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeping{
		Purger:   p,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then every Interval until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop signals the worker and waits for an in-flight purge to finish.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.purge()
	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeping) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := h.Purger.DeleteExpiredRevocations(ctx)
	if err != nil {
		h.Logger.Error("failed to purge expired revocations", "error", err)
		return
	}
	h.Logger.Debug("purged expired revocations", "deleted", n)
}

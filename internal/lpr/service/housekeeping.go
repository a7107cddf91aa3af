package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

// HousekeepingService periodically reloads signing keys, deletes signing
// keys past their grace window and drops expired revocation cache entries.
type HousekeepingService struct {
	KeyManager  *jwtx.KeyManager
	Keys        store.SigningKeys // nil when keys come from files
	Revocations *RevocationService
	Clock       clock.Clock
	Logger      *slog.Logger
	Interval    time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(km *jwtx.KeyManager, keys store.SigningKeys, revocations *RevocationService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		KeyManager:  km,
		Keys:        keys,
		Revocations: revocations,
		Clock:       clock.Real(),
		Logger:      logger,
		Interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one housekeeping pass. Each task is independent; a
// failure in one does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	now := s.Clock.Now()

	if s.Keys != nil {
		n, err := s.Keys.DeleteExpiredSigningKeys(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired signing keys", "error", err)
		} else if n > 0 {
			s.Logger.Info("deleted expired signing keys", "count", n)
		}
	}

	if s.KeyManager != nil {
		if err := s.KeyManager.Reload(ctx); err != nil {
			s.Logger.Error("failed to reload signing keys", "error", err)
		} else {
			s.Logger.Debug("reloaded signing keys", "active", s.KeyManager.NumSigners())
		}
	}

	if s.Revocations != nil {
		if n := s.Revocations.Cleanup(now); n > 0 {
			s.Logger.Debug("dropped expired revocation cache entries", "count", n, "remaining", s.Revocations.CacheSize())
		}
	}
}

package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolStatter is satisfied by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// SessionCounter reports how many sessions a store currently holds.
type SessionCounter interface {
	Len() int
}

// Updater periodically refreshes gauges that are read from other
// components rather than incremented inline.
type Updater struct {
	pool     PoolStatter
	sessions SessionCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a gauge updater. Either source may be nil.
func NewUpdater(pool PoolStatter, sessions SessionCounter, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Updater{
		pool:     pool,
		sessions: sessions,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the update loop until Stop is called or ctx is cancelled.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the update loop.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update() {
	if u.sessions != nil {
		UpdateActiveSessions(u.sessions.Len())
	}
	if u.pool != nil {
		if stat := u.pool.Stat(); stat != nil {
			UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
		}
	}
}

package raid

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// sweepTimeout bounds the store work done by one sweep pass.
const sweepTimeout = 30 * time.Second

// Sweeper periodically expires deadline-passed sessions that nobody is
// reading. It satisfies the server lifecycle Service interface: Start blocks
// until Stop is called.
type Sweeper struct {
	store    Store
	coord    *Coordinator
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a Sweeper scanning active sessions every interval.
//
// Precondition: store, coord, and logger must be non-nil; interval > 0.
func NewSweeper(store Store, coord *Coordinator, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		coord:    coord,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (w *Sweeper) Start() error {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.sweep()
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (w *Sweeper) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	sessions, err := w.store.ListActive(ctx)
	if err != nil {
		w.logger.Error("listing active sessions for sweep", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	expired := 0
	for _, s := range sessions {
		if !s.DeadlinePassed(now) {
			continue
		}
		updated, err := w.coord.CheckExpiration(ctx, s.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			w.logger.Warn("expiring session",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
			continue
		}
		if updated.Status == StatusExpired {
			expired++
		}
	}
	if expired > 0 {
		w.logger.Info("expiration sweep finished",
			zap.Int("scanned", len(sessions)),
			zap.Int("expired", expired),
		)
	}
}

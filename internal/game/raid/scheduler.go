package raid

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fireTimeout bounds the store work done by a single timer fire.
const fireTimeout = 10 * time.Second

// Skipper is the scheduler's view of the coordinator.
type Skipper interface {
	ForceSkip(ctx context.Context, sessionID string) (*Session, error)
}

// skipTimer wraps a timer so a fire can verify it is still the session's
// current schedule. A fire whose timer was superseded by a Reset aborts
// instead of skipping against state it no longer describes.
type skipTimer struct {
	timer *time.Timer
}

// SkipScheduler force-advances the turn when the holder does not act within
// the window. At most one timer is outstanding per session; arming a new one
// always cancels the prior one for that session ID. Safe for concurrent use.
//
// A fired skip is just another conditional writer: the coordinator's version
// check resolves any race with an in-flight turn, so a stale fire is a no-op
// even if it slips past the timer bookkeeping here.
type SkipScheduler struct {
	mu      sync.Mutex
	timers  map[string]*skipTimer
	window  time.Duration
	skipper Skipper
	logger  *zap.Logger
	stopped bool
}

// NewSkipScheduler creates a scheduler firing after window of holder inactivity.
//
// Precondition: window > 0; skipper and logger must be non-nil.
func NewSkipScheduler(window time.Duration, skipper Skipper, logger *zap.Logger) *SkipScheduler {
	return &SkipScheduler{
		timers:  make(map[string]*skipTimer),
		window:  window,
		skipper: skipper,
		logger:  logger,
	}
}

// Reset (re)arms the skip timer for the session, cancelling any outstanding
// one. Call on every event that sets or confirms a turn holder.
func (ss *SkipScheduler) Reset(sessionID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.stopped {
		return
	}
	if prior, ok := ss.timers[sessionID]; ok {
		prior.timer.Stop()
	}
	st := &skipTimer{}
	st.timer = time.AfterFunc(ss.window, func() {
		ss.fire(sessionID, st)
	})
	ss.timers[sessionID] = st
}

// Cancel stops and removes the session's timer, if any.
func (ss *SkipScheduler) Cancel(sessionID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if st, ok := ss.timers[sessionID]; ok {
		st.timer.Stop()
		delete(ss.timers, sessionID)
	}
}

// Stop cancels all timers and refuses further scheduling. Used at shutdown.
func (ss *SkipScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.stopped = true
	for id, st := range ss.timers {
		st.timer.Stop()
		delete(ss.timers, id)
	}
}

// Outstanding reports whether the session currently has an armed timer.
func (ss *SkipScheduler) Outstanding(sessionID string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, ok := ss.timers[sessionID]
	return ok
}

// fire runs when a timer elapses. It forces a skip and, if the session is
// still active afterwards, re-arms for the new holder.
func (ss *SkipScheduler) fire(sessionID string, st *skipTimer) {
	ss.mu.Lock()
	if ss.stopped || ss.timers[sessionID] != st {
		// Superseded by a newer Reset, or shutting down.
		ss.mu.Unlock()
		return
	}
	delete(ss.timers, sessionID)
	ss.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	s, err := ss.skipper.ForceSkip(ctx, sessionID)
	if err != nil {
		// Losing a race to a legitimate turn is expected; the turn moved on.
		ss.logger.Warn("forced skip did not apply",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	if s.Status == StatusActive {
		ss.Reset(sessionID)
	}
}

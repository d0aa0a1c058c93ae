package hub

import (
	"context"
	"time"

	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/internal/metrics"
	"github.com/SingSongScreamAlong/ProjectBlackBox-sub003/pkg/logging"
)

// Reaper is the Lifecycle/Reaper (C11): a periodic sweep that drops stale
// sessions and cancels their pending delayed deliveries (spec §4.4,
// §4.11). Subscribers are never forcibly disconnected.
type Reaper struct {
	store         *Store
	delay         *DelayScheduler
	logger        logging.Logger
	interval      time.Duration
	staleAfter    time.Duration
	lastSweepAt   time.Time
	lastSweepLock chan struct{} // 1-buffered, guards lastSweepAt without a full mutex
	metrics       *metrics.Metrics
}

// SetMetrics wires the Prometheus instruments; nil is safe and disables
// metric recording.
func (r *Reaper) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// NewReaper builds the reaper with the given sweep interval and staleness
// threshold (spec §6 configuration: defaults 30s / 60s).
func NewReaper(store *Store, delay *DelayScheduler, logger logging.Logger, interval, staleAfter time.Duration) *Reaper {
	r := &Reaper{
		store:         store,
		delay:         delay,
		logger:        logger,
		interval:      interval,
		staleAfter:    staleAfter,
		lastSweepLock: make(chan struct{}, 1),
	}
	r.lastSweepLock <- struct{}{}
	return r
}

// LastSweep returns the timestamp of the most recently completed sweep,
// used by the staleness health check.
func (r *Reaper) LastSweep() time.Time {
	<-r.lastSweepLock
	t := r.lastSweepAt
	r.lastSweepLock <- struct{}{}
	return t
}

func (r *Reaper) setLastSweep(t time.Time) {
	<-r.lastSweepLock
	r.lastSweepAt = t
	r.lastSweepLock <- struct{}{}
}

// sweep runs one reap pass, canceling pending deliveries for every reaped
// session so they cannot resurrect it (spec §3, §4.4, §4.7).
func (r *Reaper) sweep() {
	reaped := r.store.Reap(r.staleAfter)
	for _, sessionID := range reaped {
		r.delay.CancelSession(sessionID)
	}
	r.setLastSweep(time.Now())
	if len(reaped) > 0 {
		r.logger.WithFields(logging.Fields{"count": len(reaped), "sessions": reaped}).Info("reaped stale sessions")
	}
	if r.metrics != nil {
		r.metrics.ReaperSweeps.WithLabelValues().Inc()
		r.metrics.ReapedSessions.WithLabelValues().Add(float64(len(reaped)))
		r.metrics.SessionsActive.WithLabelValues().Set(float64(r.store.Count()))
	}
}

// Run starts the periodic sweep loop; it returns when ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	r.setLastSweep(time.Now())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

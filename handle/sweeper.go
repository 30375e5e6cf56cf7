package handle

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is the default period between sweeps.
const DefaultSweepInterval = 30 * time.Second

// Sweepable is a registry with collectable entries.
type Sweepable interface {
	Sweep() int
	Len() int
}

// SweepStats holds statistics from a single sweep.
type SweepStats struct {
	Swept     int
	Remaining int
	Duration  time.Duration
	Timestamp time.Time
}

// Sweeper periodically prunes collected weak associations so that
// long-running hosts do not accumulate dead entries between native
// destroy notifications.
type Sweeper struct {
	table    Sweepable
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex

	sweepCount atomic.Uint64
	lastStats  atomic.Pointer[SweepStats]
}

// NewSweeper creates a sweeper for table. A non-positive interval selects
// DefaultSweepInterval.
func NewSweeper(table Sweepable, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{table: table, interval: interval}
	s.enabled.Store(true)
	return s
}

// Start begins the sweep goroutine. Calling Start again while running does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.loop(s.stop, s.stopped)
}

// Stop halts the sweep goroutine and waits for it to exit. It is safe to
// call on a sweeper that was never started.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stopCh, stoppedCh := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled pauses or resumes sweeping without stopping the goroutine.
func (s *Sweeper) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *Sweeper) IsEnabled() bool {
	return s.enabled.Load()
}

func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// SweepCount returns the number of sweeps performed.
func (s *Sweeper) SweepCount() uint64 {
	return s.sweepCount.Load()
}

// LastStats returns the most recent sweep's statistics, or nil.
func (s *Sweeper) LastStats() *SweepStats {
	return s.lastStats.Load()
}

// SweepNow sweeps immediately.
func (s *Sweeper) SweepNow() *SweepStats {
	return s.sweep()
}

func (s *Sweeper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.enabled.Load() {
				s.sweep()
			}
		}
	}
}

func (s *Sweeper) sweep() *SweepStats {
	start := time.Now()
	stats := &SweepStats{Timestamp: start}
	stats.Swept = s.table.Sweep()
	stats.Remaining = s.table.Len()
	stats.Duration = time.Since(start)

	s.sweepCount.Add(1)
	s.lastStats.Store(stats)

	if stats.Swept > 0 {
		Logger().Debug("swept collected associations",
			zap.Int("swept", stats.Swept),
			zap.Int("remaining", stats.Remaining),
			zap.Duration("duration", stats.Duration))
	}
	return stats
}

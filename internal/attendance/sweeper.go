package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const DefaultSweepInterval = 30 * time.Minute

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visatrack_attendance_sweeps_total",
		Help: "Stale attendance sweeps executed.",
	})
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visatrack_attendance_sweep_errors_total",
		Help: "Stale attendance sweeps that failed.",
	})
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visatrack_attendance_sweep_duration_seconds",
		Help:    "Duration of stale attendance sweeps.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

type SweepResult struct {
	Closed   int
	Duration time.Duration
	Err      error
}

// Sweeper runs Tracker.Sweep on a fixed interval in a background goroutine.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	logger   *log.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(tracker *Tracker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		logger:   log.WithField("component", "attendance-sweeper"),
	}
}

// Start launches the loop; the first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)
	s.logger.WithField("interval", s.interval.String()).Info("attendance sweeper started")
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("attendance sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	start := time.Now()
	closed, err := s.tracker.Sweep(ctx)
	result := SweepResult{Closed: closed, Duration: time.Since(start), Err: err}

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	if err != nil {
		sweepErrorsTotal.Inc()
		s.logger.WithError(err).Warn("attendance sweep failed")
		return result
	}
	if closed > 0 {
		s.logger.WithFields(log.Fields{
			"closed":   closed,
			"duration": result.Duration.String(),
		}).Info("closed stale attendance sessions")
	}
	return result
}

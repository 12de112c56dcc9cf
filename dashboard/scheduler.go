package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// refresher is the part of Synchronizer the scheduler drives.
type refresher interface {
	Refresh(ctx context.Context, filterOverride string) RefreshOutcome
}

// Scheduler runs refreshes at start, on a fixed interval and on demand.
// All refreshes run on the scheduler goroutine, one after another.
type Scheduler struct {
	sync     refresher
	interval time.Duration
	logger   *zap.SugaredLogger

	// one pending trigger at most; extra triggers coalesce into it
	trigger chan struct{}
	quit    chan bool
	done    chan struct{}

	// observer for tests
	onOutcome func(RefreshOutcome)
}

// NewScheduler creates a scheduler refreshing every interval.
func NewScheduler(sync refresher, interval time.Duration, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		sync:     sync,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		quit:     make(chan bool, 1),
		done:     make(chan struct{}),
	}
}

// Trigger asks for a refresh as soon as the current one, if any, is done.
// It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// a refresh is already pending
	}
}

// Stop ends the loop and waits for an in-flight refresh to finish.
func (s *Scheduler) Stop() {
	select {
	case s.quit <- true:
	default:
	}
	<-s.done
}

// refreshLoop refreshes once, then on every tick and trigger until stopped.
func (s *Scheduler) refreshLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce("startup")
	for {
		select {
		case <-s.quit:
			s.logger.Infow("refresh loop stopped")
			return
		case <-ticker.C:
			s.runOnce("interval")
		case <-s.trigger:
			s.runOnce("trigger")
		}
	}
}

func (s *Scheduler) runOnce(cause string) {
	outcome := s.sync.Refresh(context.Background(), "")
	s.logger.Infow("refresh finished",
		"cause", cause,
		"status", outcome.Status,
		"reason", outcome.Reason,
		"records", outcome.RecordCount)
	if s.onOutcome != nil {
		s.onOutcome(outcome)
	}
}

// runRefreshLoop starts the refresh loop in a separate goroutine.
func runRefreshLoop(s *Scheduler) {
	go s.refreshLoop()
}

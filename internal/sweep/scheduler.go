// internal/sweep/scheduler.go
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"visa-tracker/internal/common/logger"
)

// RunLease is a best-effort cross-replica guard: the replica that wins the
// SETNX runs the sweep, everyone else skips the trigger. The TTL caps how
// long a crashed holder can block the next run.
type RunLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRunLease(client *redis.Client, ttl time.Duration) *RunLease {
	return &RunLease{
		client: client,
		key:    "visa-tracker:expiry-sweep:lease",
		ttl:    ttl,
	}
}

func (l *RunLease) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

func (l *RunLease) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

type SchedulerConfig struct {
	// Hour/Minute are the fixed time-of-day the daily trigger fires.
	Hour     int
	Minute   int
	Location *time.Location
}

// Scheduler fires the sweep once daily. Overlapping runs are not allowed: a
// trigger that arrives while a run is still in progress is skipped, not
// queued.
type Scheduler struct {
	config  *SchedulerConfig
	sweeper *Sweeper
	lease   *RunLease // nil disables the cross-replica guard
	logger  logger.Logger
	clock   Clock

	running atomic.Bool
}

func NewScheduler(config *SchedulerConfig, sweeper *Sweeper, lease *RunLease, clock Clock, log logger.Logger) *Scheduler {
	cfg := *config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		config:  &cfg,
		sweeper: sweeper,
		lease:   lease,
		logger:  log.WithFields(map[string]interface{}{"component": "scheduler"}),
		clock:   clock,
	}
}

// Start blocks until ctx is done, firing the sweep at the configured
// time-of-day. Run it on its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		now := s.clock().In(s.config.Location)
		next := s.nextRun(now)
		timer := time.NewTimer(next.Sub(now))

		s.logger.Info("next sweep scheduled", map[string]interface{}{
			"at": next.Format(time.RFC3339),
		})

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.TriggerOnce(ctx)
		}
	}
}

// TriggerOnce runs one sweep if none is in progress. It reports whether the
// sweep actually ran; a skipped trigger returns ran=false and no error.
func (s *Scheduler) TriggerOnce(ctx context.Context) (Result, bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sweep still running, skipping trigger", nil)
		return Result{}, false, nil
	}
	defer s.running.Store(false)

	if s.lease != nil {
		acquired, err := s.lease.Acquire(ctx)
		if err != nil {
			// Redis being down must not stop the sweep; fall back to the
			// local guard alone.
			s.logger.Warn("run lease unavailable, proceeding with local guard", map[string]interface{}{
				"error": err,
			})
		} else if !acquired {
			s.logger.Info("run lease held elsewhere, skipping trigger", nil)
			return Result{}, false, nil
		} else {
			defer func() {
				if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("run lease release failed", map[string]interface{}{
						"error": err,
					})
				}
			}()
		}
	}

	result, err := s.sweeper.Run(ctx)
	return result, true, err
}

// nextRun returns the next occurrence of the configured time-of-day strictly
// after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(),
		s.config.Hour, s.config.Minute, 0, 0, s.config.Location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

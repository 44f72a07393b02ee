// Package sweep walks every application, evaluates visa expiry, and fans out
// reminder notifications. One bad record never takes down the rest of the
// batch.
package sweep

import (
	"context"
	"time"

	"visa-tracker/internal/common/errors"
	"visa-tracker/internal/common/logger"
	"visa-tracker/internal/common/metrics"
	"visa-tracker/internal/expiry"
	"visa-tracker/internal/models"
	"visa-tracker/internal/notify"
	"visa-tracker/internal/store"
)

// Notifier is the dispatch surface the sweep drives. *notify.Dispatcher
// satisfies it; tests substitute call-counting fakes.
type Notifier interface {
	SendExpiryEmail(ctx context.Context, user *models.User, a expiry.Assessment) error
	SendVoiceAlert(ctx context.Context, user *models.User, a expiry.Assessment) error
}

var _ Notifier = (*notify.Dispatcher)(nil)

// Clock supplies the reference time; injectable for determinism in tests.
type Clock func() time.Time

// Result is the aggregate outcome of one sweep run.
type Result struct {
	Processed int `json:"processed"`
	Failures  int `json:"failures"`
}

type Config struct {
	// DispatchTimeout bounds each individual outbound call, not the run.
	DispatchTimeout time.Duration
}

type Sweeper struct {
	config   *Config
	store    store.Store
	notifier Notifier
	logger   logger.Logger
	clock    Clock
}

func NewSweeper(config *Config, st store.Store, notifier Notifier, clock Clock, log logger.Logger) *Sweeper {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	// Defaults go into a copy; the caller's config is left alone.
	cfg := *config
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = 15 * time.Second
	}
	return &Sweeper{
		config:   &cfg,
		store:    st,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "sweep"}),
		clock:    clock,
	}
}

// Run performs one full sweep synchronously. The reference date is captured
// once at run start so every record in the run is judged against the same
// day. A store outage aborts with zero progress; everything past that point
// is isolated per record.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	started := s.clock()
	referenceDate := started

	apps, err := s.store.GetApplications(ctx)
	if err != nil {
		s.logger.Error("sweep aborted: store unavailable", map[string]interface{}{
			"error": err,
		})
		metrics.SweepRuns.WithLabelValues("aborted").Inc()
		return Result{}, err
	}

	var result Result
	for i := range apps {
		app := &apps[i]
		result.Processed++

		if s.processRecord(ctx, referenceDate, app) != nil {
			result.Failures++
		}
	}

	metrics.SweepRuns.WithLabelValues("completed").Inc()
	metrics.SweepRecordsProcessed.Add(float64(result.Processed))
	metrics.SweepDuration.Observe(time.Since(started).Seconds())

	s.logger.Info("sweep completed", map[string]interface{}{
		"processed":     result.Processed,
		"failures":      result.Failures,
		"referenceDate": referenceDate.Format("2006-01-02"),
	})

	return result, nil
}

// processRecord handles a single application. A nil return means the record
// was either fully dispatched or legitimately skipped; a non-nil return
// counts as one failed record.
func (s *Sweeper) processRecord(ctx context.Context, referenceDate time.Time, app *models.Application) error {
	assessment, ok := expiry.Evaluate(referenceDate, app.VisaEnd)
	if !ok {
		// No expiry date on file yet; nothing to evaluate.
		s.logger.Debug("skipping record without expiry date", map[string]interface{}{
			"applicationId": app.ID,
		})
		return nil
	}

	if assessment.Tier == expiry.TierNone {
		return nil
	}

	user, found, err := s.store.FindUserByID(ctx, app.UserID)
	if err != nil {
		s.logger.Error("user lookup failed", map[string]interface{}{
			"error":  err,
			"userId": app.UserID,
		})
		return err
	}
	if !found {
		// Orphaned application; skip rather than fail the run.
		s.logger.Warn("application owner not found", map[string]interface{}{
			"applicationId": app.ID,
			"userId":        app.UserID,
		})
		return nil
	}

	return s.dispatch(ctx, user, assessment)
}

// dispatch fires the channels the tier calls for: email for urgent and
// critical, plus a voice alert for critical.
func (s *Sweeper) dispatch(ctx context.Context, user *models.User, a expiry.Assessment) error {
	var firstErr error

	emailCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	err := s.notifier.SendExpiryEmail(emailCtx, user, a)
	cancel()
	if err != nil {
		s.logger.Error("reminder email failed", map[string]interface{}{
			"error":         err,
			"userId":        user.ID,
			"tier":          string(a.Tier),
			"daysRemaining": a.DaysRemaining,
		})
		firstErr = err
	}

	if a.Tier == expiry.TierCritical {
		voiceCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
		err := s.notifier.SendVoiceAlert(voiceCtx, user, a)
		cancel()
		if err != nil {
			s.logger.Error("voice alert failed", map[string]interface{}{
				"error":  err,
				"userId": user.ID,
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// SendReminderNow is the on-demand admin path: one user, one channel, the
// single failure propagated to the caller.
func (s *Sweeper) SendReminderNow(ctx context.Context, userID, channel string) error {
	user, found, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("user", userID)
	}

	app, found, err := s.store.FindApplicationByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("application", userID)
	}

	assessment, ok := expiry.Evaluate(s.clock(), app.VisaEnd)
	if !ok {
		return errors.NewValidationFailedError("application has no visa end date")
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	switch channel {
	case models.ChannelEmail:
		return s.notifier.SendExpiryEmail(dispatchCtx, user, assessment)
	case models.ChannelCall:
		return s.notifier.SendVoiceAlert(dispatchCtx, user, assessment)
	default:
		return errors.NewValidationFailedError("channel must be \"email\" or \"call\"")
	}
}

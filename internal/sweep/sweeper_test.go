// internal/sweep/sweeper_test.go
package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "visa-tracker/internal/common/errors"
	"visa-tracker/internal/common/logger"
	"visa-tracker/internal/expiry"
	"visa-tracker/internal/models"
	"visa-tracker/internal/store"
)

// ==========================
// Test doubles
// ==========================

type dispatchCall struct {
	UserID     string
	Assessment expiry.Assessment
}

type fakeNotifier struct {
	mu     sync.Mutex
	Emails []dispatchCall
	Calls  []dispatchCall

	EmailErrFor map[string]error // keyed by user ID
	CallErrFor  map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		EmailErrFor: make(map[string]error),
		CallErrFor:  make(map[string]error),
	}
}

func (f *fakeNotifier) SendExpiryEmail(_ context.Context, user *models.User, a expiry.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Emails = append(f.Emails, dispatchCall{UserID: user.ID, Assessment: a})
	return f.EmailErrFor[user.ID]
}

func (f *fakeNotifier) SendVoiceAlert(_ context.Context, user *models.User, a expiry.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, dispatchCall{UserID: user.ID, Assessment: a})
	return f.CallErrFor[user.ID]
}

type unavailableStore struct {
	*store.MemoryStore
}

func (unavailableStore) GetApplications(context.Context) ([]models.Application, error) {
	return nil, stderrors.NewStorageUnavailableError(errors.New("connection refused"))
}

// ==========================
// Fixtures
// ==========================

var referenceDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return referenceDate }

func seedUser(t *testing.T, st *store.MemoryStore, id, name string) {
	t.Helper()
	_, err := st.SaveUser(context.Background(), &models.User{
		ID:    id,
		Name:  name,
		Email: id + "@example.com",
		Phone: "+12025550100",
	})
	require.NoError(t, err)
}

func seedApplication(t *testing.T, st *store.MemoryStore, userID string, end *time.Time) {
	t.Helper()
	_, err := st.SaveApplication(context.Background(), &models.Application{
		UserID:  userID,
		VisaEnd: end,
		Personal: models.PersonalInfo{
			FullName: userID,
			Email:    userID + "@example.com",
		},
	})
	require.NoError(t, err)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestSweeper(t *testing.T, st store.Store, n Notifier) *Sweeper {
	t.Helper()
	return NewSweeper(&Config{DispatchTimeout: time.Second}, st, n, fixedClock, logger.NewTestLogger(t))
}

// ==========================
// Sweep behavior
// ==========================

func TestSweeper_Run_DispatchPolicy(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := newFakeNotifier()

	// A: 1 day remaining, critical. B: 7 days, urgent. C: expired. D: no end date.
	seedUser(t, st, "user-a", "Alice")
	seedUser(t, st, "user-b", "Bob")
	seedUser(t, st, "user-c", "Carol")
	seedUser(t, st, "user-d", "Dan")
	seedApplication(t, st, "user-a", datePtr(2024, 6, 2))
	seedApplication(t, st, "user-b", datePtr(2024, 6, 8))
	seedApplication(t, st, "user-c", datePtr(2024, 5, 20))
	seedApplication(t, st, "user-d", nil)

	result, err := newTestSweeper(t, st, notifier).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 0, result.Failures)

	// Critical fires both channels; urgent only email; none/indeterminate nothing.
	require.Len(t, notifier.Emails, 2)
	require.Len(t, notifier.Calls, 1)

	assert.Equal(t, "user-a", notifier.Emails[0].UserID)
	assert.Equal(t, 1, notifier.Emails[0].Assessment.DaysRemaining)
	assert.Equal(t, expiry.TierCritical, notifier.Emails[0].Assessment.Tier)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), notifier.Emails[0].Assessment.ExpiryDate)

	assert.Equal(t, "user-b", notifier.Emails[1].UserID)
	assert.Equal(t, 7, notifier.Emails[1].Assessment.DaysRemaining)
	assert.Equal(t, expiry.TierUrgent, notifier.Emails[1].Assessment.Tier)

	assert.Equal(t, "user-a", notifier.Calls[0].UserID)
}

func TestSweeper_Run_TierBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		end        *time.Time
		wantEmails int
		wantCalls  int
	}{
		{name: "two days is critical", end: datePtr(2024, 6, 3), wantEmails: 1, wantCalls: 1},
		{name: "three days is urgent", end: datePtr(2024, 6, 4), wantEmails: 1, wantCalls: 0},
		{name: "ten days is urgent", end: datePtr(2024, 6, 11), wantEmails: 1, wantCalls: 0},
		{name: "eleven days is quiet", end: datePtr(2024, 6, 12), wantEmails: 0, wantCalls: 0},
		{name: "expired yesterday is quiet", end: datePtr(2024, 5, 31), wantEmails: 0, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			notifier := newFakeNotifier()
			seedUser(t, st, "user-x", "Xena")
			seedApplication(t, st, "user-x", tt.end)

			result, err := newTestSweeper(t, st, notifier).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, result.Processed)
			assert.Len(t, notifier.Emails, tt.wantEmails)
			assert.Len(t, notifier.Calls, tt.wantCalls)
		})
	}
}

func TestSweeper_Run_FailureIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := newFakeNotifier()

	// Five urgent records; the middle one fails to send.
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		seedUser(t, st, id, id)
		seedApplication(t, st, id, datePtr(2024, 6, 8))
	}
	notifier.EmailErrFor["u3"] = stderrors.NewDeliveryFailedError("email", errors.New("bounce"))

	result, err := newTestSweeper(t, st, notifier).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 1, result.Failures)
	// Every record was still attempted.
	assert.Len(t, notifier.Emails, 5)
}

func TestSweeper_Run_CriticalVoiceFailureCountsOnce(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := newFakeNotifier()

	seedUser(t, st, "u1", "One")
	seedApplication(t, st, "u1", datePtr(2024, 6, 2))
	notifier.CallErrFor["u1"] = stderrors.NewDeliveryFailedError("call", errors.New("busy"))

	result, err := newTestSweeper(t, st, notifier).Run(context.Background())
	require.NoError(t, err)

	// Email went out, the voice leg failed; one failed record.
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failures)
	assert.Len(t, notifier.Emails, 1)
	assert.Len(t, notifier.Calls, 1)
}

func TestSweeper_Run_OrphanedApplicationSkipped(t *testing.T) {
	st := store.NewMemoryStore()
	notifier := newFakeNotifier()

	// Application whose owner is missing from the user table.
	seedApplication(t, st, "ghost", datePtr(2024, 6, 2))
	seedUser(t, st, "real", "Real")
	seedApplication(t, st, "real", datePtr(2024, 6, 2))

	result, err := newTestSweeper(t, st, notifier).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failures)
	require.Len(t, notifier.Emails, 1)
	assert.Equal(t, "real", notifier.Emails[0].UserID)
}

func TestSweeper_Run_StoreUnavailableAbortsCleanly(t *testing.T) {
	notifier := newFakeNotifier()
	st := unavailableStore{store.NewMemoryStore()}

	result, err := newTestSweeper(t, st, notifier).Run(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.IsStorageUnavailable(err))

	// Zero progress reported, nothing dispatched.
	assert.Equal(t, Result{}, result)
	assert.Empty(t, notifier.Emails)
	assert.Empty(t, notifier.Calls)
}

func TestSweeper_Run_EmptyStore(t *testing.T) {
	result, err := newTestSweeper(t, store.NewMemoryStore(), newFakeNotifier()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

// ==========================
// On-demand path
// ==========================

func TestSweeper_SendReminderNow(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "user-a", "Alice")
	seedApplication(t, st, "user-a", datePtr(2024, 6, 2))

	t.Run("email channel", func(t *testing.T) {
		notifier := newFakeNotifier()
		s := newTestSweeper(t, st, notifier)

		err := s.SendReminderNow(context.Background(), "user-a", models.ChannelEmail)
		require.NoError(t, err)
		require.Len(t, notifier.Emails, 1)
		assert.Empty(t, notifier.Calls)
		assert.Equal(t, 1, notifier.Emails[0].Assessment.DaysRemaining)
	})

	t.Run("call channel", func(t *testing.T) {
		notifier := newFakeNotifier()
		s := newTestSweeper(t, st, notifier)

		err := s.SendReminderNow(context.Background(), "user-a", models.ChannelCall)
		require.NoError(t, err)
		require.Len(t, notifier.Calls, 1)
		assert.Empty(t, notifier.Emails)
	})

	t.Run("unknown user", func(t *testing.T) {
		s := newTestSweeper(t, st, newFakeNotifier())

		err := s.SendReminderNow(context.Background(), "nobody", models.ChannelEmail)
		require.Error(t, err)
		assert.True(t, stderrors.IsNotFound(err))
	})

	t.Run("user without application", func(t *testing.T) {
		seedUser(t, st, "no-app", "NoApp")
		s := newTestSweeper(t, st, newFakeNotifier())

		err := s.SendReminderNow(context.Background(), "no-app", models.ChannelEmail)
		require.Error(t, err)
		assert.True(t, stderrors.IsNotFound(err))
	})

	t.Run("delivery failure propagates", func(t *testing.T) {
		notifier := newFakeNotifier()
		notifier.EmailErrFor["user-a"] = stderrors.NewDeliveryFailedError("email", errors.New("bounce"))
		s := newTestSweeper(t, st, notifier)

		err := s.SendReminderNow(context.Background(), "user-a", models.ChannelEmail)
		require.Error(t, err)
		assert.True(t, stderrors.IsDeliveryFailed(err))
	})

	t.Run("invalid channel", func(t *testing.T) {
		s := newTestSweeper(t, st, newFakeNotifier())

		err := s.SendReminderNow(context.Background(), "user-a", "carrier-pigeon")
		require.Error(t, err)
		assert.Equal(t, stderrors.ErrCodeValidationFailed, stderrors.CodeOf(err))
	})

	t.Run("no expiry date on file", func(t *testing.T) {
		seedUser(t, st, "no-date", "NoDate")
		seedApplication(t, st, "no-date", nil)
		s := newTestSweeper(t, st, newFakeNotifier())

		err := s.SendReminderNow(context.Background(), "no-date", models.ChannelEmail)
		require.Error(t, err)
		assert.Equal(t, stderrors.ErrCodeValidationFailed, stderrors.CodeOf(err))
	})
}

// advancingClock jumps a full day on every read, so any code path that reads
// the clock more than once per run judges later records against a later date.
type advancingClock struct {
	mu    sync.Mutex
	next  time.Time
	reads int
}

func (c *advancingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.AddDate(0, 0, 1)
	c.reads++
	return now
}

func (c *advancingClock) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func TestSweeper_Run_ReferenceDateCapturedOnce(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "u1", "First")
	seedUser(t, st, "u2", "Second")
	// u1 sits well inside critical; u2 sits exactly one day outside urgent at
	// run start (11 days) and would flip to urgent if the reference date
	// drifted forward mid-run.
	seedApplication(t, st, "u1", datePtr(2024, 6, 2))
	seedApplication(t, st, "u2", datePtr(2024, 6, 11))

	clock := &advancingClock{next: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)}
	notifier := newFakeNotifier()
	s := NewSweeper(&Config{DispatchTimeout: time.Second}, st, notifier, clock.Now, logger.NewTestLogger(t))

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 2, Failures: 0}, result)

	require.Len(t, notifier.Emails, 1)
	assert.Equal(t, "u1", notifier.Emails[0].UserID)
	assert.Equal(t, 2, notifier.Emails[0].Assessment.DaysRemaining)

	assert.Equal(t, 1, clock.Reads(), "reference date must be read once per run")
}

func TestNewSweeper_DoesNotMutateCallerConfig(t *testing.T) {
	cfg := &Config{}
	_ = NewSweeper(cfg, store.NewMemoryStore(), newFakeNotifier(), fixedClock, logger.NewTestLogger(t))
	assert.Zero(t, cfg.DispatchTimeout)
}

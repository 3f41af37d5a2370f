package tracker

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tempo/internal/notify"
	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/timer"
)

var epoch = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingNotifier) LimitReached(_ context.Context, alert notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// faultyStore wraps a real store and can fail or count Create.
type faultyStore struct {
	storage.Store
	createErr   error
	createCalls int
}

func (f *faultyStore) Create(ctx context.Context, s *storage.Session) (int64, error) {
	f.createCalls++
	if f.createErr != nil {
		return 0, f.createErr
	}
	return f.Store.Create(ctx, s)
}

func openStore(t *testing.T) *faultyStore {
	t.Helper()
	store, db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		db.Close()
	})
	return &faultyStore{Store: store}
}

func newTracker(t *testing.T, store storage.Store, clock *timer.ManualClock, opts ...Option) *Tracker {
	t.Helper()
	base := []Option{WithClock(clock), WithTickInterval(time.Hour)}
	tr := New(store, append(base, opts...)...)
	t.Cleanup(tr.Close)
	return tr
}

func TestStop_SavesSession(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "Write report", "study"))
	clock.Advance(20 * time.Second)
	require.NoError(t, tr.Pause(ctx))
	clock.Advance(time.Hour)
	require.NoError(t, tr.Resume(ctx))
	clock.Advance(10 * time.Second)

	res, err := tr.Stop(ctx, func(time.Duration) bool {
		t.Fatal("confirm must not be asked for a long session")
		return false
	})
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, 30*time.Second, res.Elapsed)

	sessions, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, "Write report", got.TaskName)
	assert.Equal(t, "study", got.Category)
	assert.Equal(t, int64(30000), got.DurationMs)
	assert.True(t, got.StartTime.Equal(epoch), "start time is the first start of the task")
	assert.True(t, got.EndTime.Equal(clock.Now()))

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok, "state cleared after stop")
	assert.Equal(t, timer.Idle, tr.Status().State)
}

func TestStop_DefaultsTaskName(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "  ", ""))
	clock.Advance(time.Minute)
	res, err := tr.Stop(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, storage.DefaultTaskName, res.Session.TaskName)
	assert.Equal(t, DefaultCategory, res.Session.Category)
}

func TestStop_ShortSessionConfirmedIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "oops", "work"))
	clock.Advance(3 * time.Second)

	var asked time.Duration
	res, err := tr.Stop(ctx, func(elapsed time.Duration) bool {
		asked = elapsed
		return true
	})
	require.NoError(t, err)

	assert.True(t, res.Discarded)
	assert.Equal(t, 3*time.Second, asked)
	assert.Equal(t, 0, store.createCalls, "discarding never reaches the store")

	sessions, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), tr.Status().Elapsed)
}

func TestStop_ShortSessionDeclinedIsSaved(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "quick", "break"))
	clock.Advance(4999 * time.Millisecond)

	res, err := tr.Stop(ctx, func(time.Duration) bool { return false })
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, int64(4999), res.Session.DurationMs)
}

func TestStop_SaveFailureKeepsTask(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	store.createErr = storage.ErrOperationFailed
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "Important", "work"))
	clock.Advance(time.Minute)

	_, err := tr.Stop(ctx, nil)
	require.ErrorIs(t, err, storage.ErrOperationFailed)

	st := tr.Status()
	assert.Equal(t, timer.Running, st.State)
	assert.Equal(t, time.Minute, st.Elapsed)

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.True(t, ok, "persisted state survives a failed save")

	// Retry succeeds once the store recovers.
	store.createErr = nil
	res, err := tr.Stop(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.Saved)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	assert.ErrorIs(t, tr.Discard(ctx), ErrIdle)

	require.NoError(t, tr.Start(ctx, "Throwaway", "work"))
	clock.Advance(time.Hour)
	require.NoError(t, tr.Discard(ctx))

	assert.Equal(t, 0, store.createCalls)
	assert.Equal(t, timer.Idle, tr.Status().State)
}

func TestStateTransitionErrors(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	assert.ErrorIs(t, tr.Pause(ctx), ErrIdle)
	assert.ErrorIs(t, tr.Resume(ctx), ErrIdle)
	_, err := tr.Stop(ctx, nil)
	assert.ErrorIs(t, err, ErrIdle)

	require.NoError(t, tr.Start(ctx, "a", "work"))
	assert.ErrorIs(t, tr.Start(ctx, "b", "work"), ErrAlreadyRunning)
	assert.ErrorIs(t, tr.Resume(ctx), ErrAlreadyRunning)

	require.NoError(t, tr.Pause(ctx))
	assert.ErrorIs(t, tr.Pause(ctx), ErrNotRunning)
}

func TestPause_WithNothingBankedStaysPaused(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "a", "work"))
	require.NoError(t, tr.Pause(ctx))

	assert.Equal(t, timer.Paused, tr.Status().State)
}

func TestStart_PausedKeepsOrReplacesDetails(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "Draft", "work"))
	clock.Advance(time.Second)
	require.NoError(t, tr.Pause(ctx))

	require.NoError(t, tr.Start(ctx, "", ""))
	st := tr.Status()
	assert.Equal(t, "Draft", st.TaskName)
	assert.Equal(t, "work", st.Category)

	require.NoError(t, tr.Pause(ctx))
	require.NoError(t, tr.Start(ctx, "Final", "study"))
	st = tr.Status()
	assert.Equal(t, "Final", st.TaskName)
	assert.Equal(t, "study", st.Category)
	assert.Equal(t, 25*time.Minute, st.Limit)
	assert.True(t, st.StartedAt.Equal(epoch))
}

func TestRestore_ContinuesAcrossProcesses(t *testing.T) {
	tests := []struct {
		name    string
		pause   bool
		want    time.Duration
		wantSet timer.State
	}{
		{"running counts downtime", false, 30*time.Second + 5*time.Minute, timer.Running},
		{"paused ignores downtime", true, 30 * time.Second, timer.Paused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t)
			clock := timer.NewManualClock(epoch)

			first := newTracker(t, store, clock)
			require.NoError(t, first.Start(ctx, "Deep work", "work"))
			clock.Advance(30 * time.Second)
			if tt.pause {
				require.NoError(t, first.Pause(ctx))
			}
			first.Close()

			clock.Advance(5 * time.Minute)

			second := newTracker(t, store, clock)
			require.NoError(t, second.Restore(ctx))

			st := second.Status()
			assert.Equal(t, tt.wantSet, st.State)
			assert.Equal(t, tt.want, st.Elapsed)
			assert.Equal(t, "Deep work", st.TaskName)
			assert.Equal(t, "work", st.Category)

			res, err := second.Stop(ctx, nil)
			require.NoError(t, err)
			assert.True(t, res.Session.StartTime.Equal(epoch))
		})
	}
}

func TestRestore_NoStateIsIdle(t *testing.T) {
	store := openStore(t)
	tr := newTracker(t, store, timer.NewManualClock(epoch))

	require.NoError(t, tr.Restore(context.Background()))
	assert.Equal(t, timer.Idle, tr.Status().State)
}

func TestRestore_LegacyBlobWithoutVersion(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)

	anchor := epoch.Add(-2 * time.Minute).UnixMilli()
	legacy := `{"timer":{"isRunning":true,"startTime":` + strconv.FormatInt(anchor, 10) + `,"accumulatedTime":60000,"lastUpdated":0},"taskName":"Old"}`
	require.NoError(t, store.SetSetting(ctx, StateKey, legacy))

	tr := newTracker(t, store, clock)
	require.NoError(t, tr.Restore(ctx))

	st := tr.Status()
	assert.Equal(t, timer.Running, st.State)
	assert.Equal(t, 3*time.Minute, st.Elapsed)
	assert.Equal(t, "Old", st.TaskName)
	assert.Equal(t, DefaultCategory, st.Category)
}

func TestRestore_PausedLegacyBlobDerivesTaskStart(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)

	legacy := `{"timer":{"isRunning":false,"startTime":0,"accumulatedTime":90000,"lastUpdated":0},"taskName":"Old"}`
	require.NoError(t, store.SetSetting(ctx, StateKey, legacy))

	tr := newTracker(t, store, clock)
	require.NoError(t, tr.Restore(ctx))

	st := tr.Status()
	assert.Equal(t, timer.Paused, st.State)
	assert.Equal(t, 90*time.Second, st.Elapsed)
	assert.True(t, st.StartedAt.Equal(epoch.Add(-90*time.Second)))
}

func TestRestore_FutureVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SetSetting(ctx, StateKey, `{"version":99}`))

	tr := newTracker(t, store, timer.NewManualClock(epoch))
	assert.ErrorIs(t, tr.Restore(ctx), ErrUnsupportedState)

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.True(t, ok, "unknown state is left for a newer version")
}

func TestRestore_CorruptStateIsDropped(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.SetSetting(ctx, StateKey, `{not json`))

	var buf bytes.Buffer
	tr := newTracker(t, store, timer.NewManualClock(epoch), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, tr.Restore(ctx))

	assert.Equal(t, timer.Idle, tr.Status().State)
	assert.Contains(t, buf.String(), "Discarding unreadable tracker state")
	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTick_FiresLimitOnce(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	notifier := &recordingNotifier{}
	var observed []Status
	tr := newTracker(t, store, clock,
		WithNotifier(notifier),
		WithObserver(func(s Status) { observed = append(observed, s) }),
	)

	require.NoError(t, tr.SetLimit(ctx, "work", 1))
	require.NoError(t, tr.Start(ctx, "Focus", "work"))

	for i := 0; i < 70; i++ {
		clock.Advance(time.Second)
		tr.Tick(ctx)
	}

	require.Equal(t, 1, notifier.count())
	alert := notifier.alerts[0]
	assert.Equal(t, "Focus", alert.TaskName)
	assert.Equal(t, "work", alert.Category)
	assert.Equal(t, time.Minute, alert.Elapsed)
	assert.Equal(t, time.Minute, alert.Limit)

	require.Len(t, observed, 70)
	assert.False(t, observed[58].LimitReached)
	assert.True(t, observed[59].LimitReached)

	// The fired flag survives a restart.
	tr.Close()
	next := newTracker(t, store, clock, WithNotifier(notifier))
	require.NoError(t, next.Restore(ctx))
	clock.Advance(time.Second)
	next.Tick(ctx)
	assert.Equal(t, 1, notifier.count())
}

func TestTick_ZeroLimitNeverFires(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, clock, WithNotifier(notifier))

	require.NoError(t, tr.SetLimit(ctx, "work", 0))
	require.NoError(t, tr.Start(ctx, "Focus", "work"))
	clock.Advance(10 * time.Hour)
	tr.Tick(ctx)

	assert.Equal(t, 0, notifier.count())
}

func TestTick_IdleIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	tr := newTracker(t, store, timer.NewManualClock(epoch))

	tr.Tick(ctx)

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok, "a late tick after stop must not resurrect state")
}

func TestTick_PersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	require.NoError(t, tr.Start(ctx, "Focus", "work"))
	clock.Advance(42 * time.Second)
	tr.Tick(ctx)

	raw, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)
	st, err := decodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UnixMilli(), st.Timer.LastUpdated)
	assert.Equal(t, epoch.UnixMilli(), st.TaskStartedAt)
}

func TestTickLoop_DrivesTracker(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	ticks := make(chan Status, 8)
	tr := New(store,
		WithClock(clock),
		WithTickInterval(5*time.Millisecond),
		WithObserver(func(s Status) {
			select {
			case ticks <- s:
			default:
			}
		}),
	)
	defer tr.Close()

	require.NoError(t, tr.Start(ctx, "Loop", "work"))
	clock.Advance(time.Minute)

	select {
	case st := <-ticks:
		assert.Equal(t, time.Minute, st.Elapsed)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick observed")
	}

	_, err := tr.Stop(ctx, nil)
	require.NoError(t, err)
}

func TestLimits_DefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	tr := newTracker(t, store, clock)

	limits, err := tr.Limits(ctx)
	require.NoError(t, err)
	assert.Equal(t, timer.DefaultLimits(), limits)

	require.NoError(t, tr.SetLimit(ctx, "reading", 40))
	limits, err = tr.Limits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, limits["reading"])
	assert.Equal(t, 50, limits["work"])

	assert.ErrorIs(t, tr.SetLimit(ctx, "work", -1), ErrInvalidLimit)
	assert.ErrorIs(t, tr.SetLimit(ctx, " ", 5), ErrInvalidLimit)
}

func TestSetLimit_AppliesToTaskInProgress(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, clock, WithNotifier(notifier))

	require.NoError(t, tr.Start(ctx, "Focus", "work"))
	clock.Advance(2 * time.Minute)
	require.NoError(t, tr.SetLimit(ctx, "work", 3))
	assert.Equal(t, 3*time.Minute, tr.Status().Limit)

	clock.Advance(time.Minute)
	tr.Tick(ctx)
	assert.Equal(t, 1, notifier.count())
}

func TestBackupStatus(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	tr := newTracker(t, store, timer.NewManualClock(epoch))

	st, err := tr.BackupStatus(ctx, epoch)
	require.NoError(t, err)
	assert.True(t, st.Never)
	assert.True(t, st.Stale)

	require.NoError(t, tr.MarkBackup(ctx, epoch))

	tests := []struct {
		name  string
		after time.Duration
		stale bool
	}{
		{"just exported", 0, false},
		{"two days", 48 * time.Hour, false},
		{"exactly three days", 72 * time.Hour, false},
		{"past three days", 72*time.Hour + time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := tr.BackupStatus(ctx, epoch.Add(tt.after))
			require.NoError(t, err)
			assert.False(t, st.Never)
			assert.True(t, st.Last.Equal(epoch))
			assert.Equal(t, tt.stale, st.Stale)
		})
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	store, db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	tr := New(store, WithClock(timer.NewManualClock(epoch)), WithTickInterval(time.Hour))
	defer tr.Close()

	store.Close()
	db.Close()

	err = tr.Restore(ctx)
	assert.True(t, errors.Is(err, storage.ErrOperationFailed))
}

func TestTick_StoppedElsewhereIsNotResurrected(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	var observed []Status
	watcher := newTracker(t, store, clock, WithObserver(func(s Status) { observed = append(observed, s) }))

	require.NoError(t, watcher.Start(ctx, "Write report", "work"))
	clock.Advance(10 * time.Minute)

	other := newTracker(t, store, clock)
	require.NoError(t, other.Restore(ctx))
	res, err := other.Stop(ctx, nil)
	require.NoError(t, err)
	require.True(t, res.Saved)

	clock.Advance(time.Second)
	watcher.Tick(ctx)

	_, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok, "a tick must not rewrite state cleared by another process")
	assert.Equal(t, timer.Idle, watcher.Status().State)
	require.Len(t, observed, 1)
	assert.Equal(t, timer.Idle, observed[0].State)

	fresh := newTracker(t, store, clock)
	require.NoError(t, fresh.Restore(ctx))
	assert.Equal(t, timer.Idle, fresh.Status().State)
	_, err = fresh.Stop(ctx, nil)
	assert.ErrorIs(t, err, ErrIdle)

	sessions, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(600_000), sessions[0].DurationMs)
}

func TestTick_PausedElsewhereStaysPaused(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	watcher := newTracker(t, store, clock)

	require.NoError(t, watcher.Start(ctx, "Write report", "work"))
	clock.Advance(5 * time.Minute)

	other := newTracker(t, store, clock)
	require.NoError(t, other.Restore(ctx))
	require.NoError(t, other.Pause(ctx))

	clock.Advance(5 * time.Minute)
	watcher.Tick(ctx)

	st := watcher.Status()
	assert.Equal(t, timer.Paused, st.State)
	assert.Equal(t, 5*time.Minute, st.Elapsed)

	raw, ok, err := store.GetSetting(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)
	saved, err := decodeState(raw)
	require.NoError(t, err)
	assert.False(t, saved.Timer.IsRunning)
	assert.Equal(t, int64(300_000), saved.Timer.AccumulatedTime)
}

func TestTick_PicksUpTaskRenamedElsewhere(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	watcher := newTracker(t, store, clock)

	require.NoError(t, watcher.Start(ctx, "Draft", "work"))
	clock.Advance(time.Minute)

	other := newTracker(t, store, clock)
	require.NoError(t, other.Restore(ctx))
	require.NoError(t, other.Pause(ctx))
	require.NoError(t, other.Start(ctx, "Final", "study"))
	other.Close()

	clock.Advance(time.Minute)
	watcher.Tick(ctx)

	st := watcher.Status()
	assert.Equal(t, timer.Running, st.State)
	assert.Equal(t, "Final", st.TaskName)
	assert.Equal(t, "study", st.Category)
	assert.Equal(t, 2*time.Minute, st.Elapsed)
}

func TestTick_UsesCurrentTaskElapsed(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	clock := timer.NewManualClock(epoch)
	notifier := &recordingNotifier{}
	tr := newTracker(t, store, clock, WithNotifier(notifier))

	require.NoError(t, tr.SetLimit(ctx, "break", 1))
	require.NoError(t, tr.Start(ctx, "Long one", "work"))
	clock.Advance(2 * time.Hour)
	_, err := tr.Stop(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Start(ctx, "Coffee", "break"))
	clock.Advance(time.Second)
	tr.Tick(ctx)

	assert.Equal(t, 0, notifier.count(), "the previous task's time must not count against the new limit")
	assert.Equal(t, time.Second, tr.Status().Elapsed)
}

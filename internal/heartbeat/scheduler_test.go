package heartbeat_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"playtime/internal/calendar"
	"playtime/internal/database/memory"
	"playtime/internal/heartbeat"
	"playtime/internal/models"
	"playtime/internal/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = time.Minute

// flakyStore fails or panics on demand before delegating to a memory store.
type flakyStore struct {
	*memory.Store
	fail   atomic.Bool
	panics atomic.Bool
}

func (f *flakyStore) AddTime(ctx context.Context, userID int64, displayName, activity string, seconds int64, when time.Time) error {
	if f.panics.Load() {
		panic("store exploded")
	}
	if f.fail.Load() {
		return errors.New("store unavailable")
	}
	return f.Store.AddTime(ctx, userID, displayName, activity, seconds, when)
}

type fixture struct {
	clk     *quartz.Mock
	tracker *tracker.Tracker
	store   *flakyStore
	names   *tracker.NameCache
	sched   *heartbeat.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := quartz.NewMock(t)
	clk.Set(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)).MustWait(context.Background())

	tr := tracker.New(clk)
	store := &flakyStore{Store: memory.New(calendar.New(clk, time.UTC))}
	names, err := tracker.NewNameCache(16)
	require.NoError(t, err)

	f := &fixture{
		clk:     clk,
		tracker: tr,
		store:   store,
		names:   names,
		sched:   heartbeat.New(tr, store, names, clk, interval, zerolog.Nop()),
	}
	t.Cleanup(func() { _ = f.sched.Stop() })
	return f
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	f.clk.Advance(interval).MustWait(context.Background())
}

func (f *fixture) allTime(t *testing.T, userID int64) []models.ActivityTime {
	t.Helper()
	rows, err := f.store.TopActivities(context.Background(), userID, models.PeriodAll, 10)
	require.NoError(t, err)
	return rows
}

func TestScheduler_CreditsEveryInterval(t *testing.T) {
	f := newFixture(t)
	f.names.Remember(1, "alice")
	f.tracker.Start(1, "Chess")
	f.sched.Start(context.Background())

	for i := 0; i < 3; i++ {
		f.tick(t)
	}
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 180}}, f.allTime(t, 1))

	f.clk.Advance(10 * time.Second).MustWait(context.Background())
	stop := f.tracker.Stop(1, "Chess")
	require.NoError(t, f.store.AddTime(context.Background(), 1, "alice", "Chess", stop, f.clk.Now()))

	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 190}}, f.allTime(t, 1))
	today, err := f.store.TopActivities(context.Background(), 1, models.PeriodToday, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 190}}, today)

	name, err := f.store.DisplayName(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestScheduler_SurvivesStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")
	f.sched.Start(context.Background())

	f.store.fail.Store(true)
	f.tick(t)
	assert.Empty(t, f.allTime(t, 1))

	f.store.fail.Store(false)
	f.tick(t)
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 120}}, f.allTime(t, 1),
		"time from the failed tick is credited on the next one")
}

func TestScheduler_SurvivesPanics(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")
	f.sched.Start(context.Background())

	f.store.panics.Store(true)
	f.tick(t)

	f.store.panics.Store(false)
	f.tick(t)
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 120}}, f.allTime(t, 1))
}

func TestScheduler_MultipleSessions(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")
	f.tracker.Start(1, "Music")
	f.tracker.Start(2, "Chess")
	f.sched.Start(context.Background())

	f.tick(t)
	f.tracker.Stop(1, "Music")
	f.tick(t)

	assert.Equal(t, []models.ActivityTime{
		{Activity: "Chess", Seconds: 120},
		{Activity: "Music", Seconds: 60},
	}, f.allTime(t, 1))
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 120}}, f.allTime(t, 2))
}

func TestScheduler_NameFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Store.AddTime(ctx, 2, "bob", "Go", 1, f.clk.Now()))

	f.tracker.Start(1, "Chess")
	f.tracker.Start(2, "Chess")
	require.NoError(t, f.sched.Flush(ctx))
	f.clk.Advance(30 * time.Second).MustWait(ctx)
	require.NoError(t, f.sched.Flush(ctx))

	name, err := f.store.DisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1", name)

	name, err = f.store.DisplayName(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	cached, ok := f.names.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "bob", cached)
}

func TestScheduler_FlushReportsErrors(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")
	f.clk.Advance(30 * time.Second).MustWait(context.Background())

	f.store.fail.Store(true)
	err := f.sched.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	f.store.fail.Store(false)
	require.NoError(t, f.sched.Flush(context.Background()))
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 30}}, f.allTime(t, 1))
}

func TestScheduler_FlushHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")
	f.clk.Advance(30 * time.Second).MustWait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.sched.Flush(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.allTime(t, 1))

	assert.Equal(t, int64(30), f.tracker.Stop(1, "Chess"), "abandoned tick leaves time pending")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.tracker.Start(1, "Chess")

	require.NoError(t, f.sched.Stop(), "stop before start")

	f.sched.Start(context.Background())
	f.sched.Start(context.Background())
	f.tick(t)

	require.NoError(t, f.sched.Stop())
	require.NoError(t, f.sched.Stop())

	f.clk.Advance(interval).MustWait(context.Background())
	assert.Equal(t, []models.ActivityTime{{Activity: "Chess", Seconds: 60}}, f.allTime(t, 1),
		"no ticks after stop")
}

func TestScheduler_ParentContextCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.sched.Start(ctx)
	cancel()
	require.NoError(t, f.sched.Stop())
}

func TestNew_DefaultsInterval(t *testing.T) {
	s := heartbeat.New(tracker.New(quartz.NewReal()), nil, nil, quartz.NewReal(), 0, zerolog.Nop())
	assert.Equal(t, heartbeat.DefaultInterval, s.Interval())
}

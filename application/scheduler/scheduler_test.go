package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/risk"
	"github.com/44dummies/tradermind-server-sub000/internal/core/domain/session"
	storage "github.com/44dummies/tradermind-server-sub000/internal/infrastructure/persistence/in_memory_storage"
	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
)

type discard struct{}

func (discard) Publish(context.Context, events.Topic, events.Envelope) (string, error) {
	return "", nil
}

type noBalances struct{}

func (noBalances) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1000), nil
}

func TestScheduleNextRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC), DailyAt(23, 59).nextRun(now))
	assert.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC), DailyAt(6, 0).nextRun(now))
	assert.Equal(t, time.Date(2026, 3, 11, 12, 30, 0, 0, time.UTC), DailyAt(12, 30).nextRun(now))
	assert.Equal(t, now.Add(time.Minute), Every(time.Minute).nextRun(now))
}

func TestSweepCompletesOverdueSessions(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := t0
	clock := func() time.Time { return now }

	m := session.NewManager(storage.NewSessionStore(), noBalances{}, discard{})
	m.SetClock(clock)

	admin := session.Actor{UserID: "admin", IsAdmin: true}
	timed, err := m.CreateSession(ctx, admin, session.CreateParams{
		Name: "timed", Type: session.TypeDay, Markets: []string{"R_100"},
		DefaultTP: decimal.NewFromInt(10), DefaultSL: decimal.NewFromInt(5),
		BaseStake: decimal.NewFromInt(1), DurationMinutes: 1,
	})
	require.NoError(t, err)
	_, err = m.StartSession(ctx, admin, timed.ID)
	require.NoError(t, err)

	open, err := m.CreateSession(ctx, admin, session.CreateParams{
		Name: "open", Type: session.TypeDay, Markets: []string{"R_50"},
		DefaultTP: decimal.NewFromInt(10), DefaultSL: decimal.NewFromInt(5),
		BaseStake: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	_, err = m.StartSession(ctx, admin, open.ID)
	require.NoError(t, err)

	sweep := SweepSessions(m, clock)

	now = t0.Add(30 * time.Second)
	require.NoError(t, sweep(ctx))
	s, err := m.GetSession(ctx, timed.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, s.Status)

	now = t0.Add(61 * time.Second)
	require.NoError(t, sweep(ctx))

	s, err = m.GetSession(ctx, timed.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Equal(t, ReasonOverdue, s.EndReason)

	s, err = m.GetSession(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRunning, s.Status, "sessions without a duration never expire")
}

func TestRegisterAllSkipsMissingDeps(t *testing.T) {
	s := New()
	RegisterAll(s, Deps{Ledger: risk.NewLedger()})

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily_report", jobs[0].Name)
}

func TestSchedulerRunsDueJobs(t *testing.T) {
	s := New()
	s.poll = 10 * time.Millisecond

	ran := make(chan struct{}, 10)
	s.Register(&Job{
		Name:     "tick",
		Schedule: Every(time.Hour),
		Handler: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	s.jobs[0].nextRun = time.Now().Add(-time.Second)

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool { return s.Jobs()[0].Runs == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, s.Jobs()[0].NextRun.After(time.Now().Add(30*time.Minute)))
}

package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/store"
)

func init() {
	logging.Disable()
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "lavis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeRunner struct {
	mu      sync.Mutex
	goals   []string
	delay   time.Duration
	active  int32
	overlap atomic.Bool
}

func (f *fakeRunner) RunTask(ctx context.Context, goal string) (string, error) {
	if atomic.AddInt32(&f.active, 1) > 1 {
		f.overlap.Store(true)
	}
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	f.goals = append(f.goals, goal)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "ran: " + goal, nil
}

func (f *fakeRunner) Goals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.goals...)
}

func echoShell(ctx context.Context, command string) (string, error) {
	return "shell: " + command, nil
}

func TestCreateValidatesCron(t *testing.T) {
	s := New(Config{Store: openStore(t), Shell: echoShell})

	_, err := s.Create(&store.ScheduledTask{Name: "bad", CronExpr: "not a cron", Command: "echo hi"})
	assert.Error(t, err)

	task, err := s.Create(&store.ScheduledTask{
		Name:     "good",
		CronExpr: "0 */5 * * * *",
		Command:  "echo hi",
		Enabled:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "good", got.Name)
	assert.True(t, got.Enabled)
}

func TestStartPausesInvalidCronRows(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.CreateTask(&store.ScheduledTask{
		ID:       "broken",
		Name:     "broken",
		CronExpr: "*/5 * * *",
		Command:  "echo hi",
		Enabled:  true,
	}))

	s := New(Config{Store: st, Shell: echoShell})
	require.NoError(t, s.Start())
	defer s.Stop()

	task, err := st.GetTask("broken")
	require.NoError(t, err)
	assert.False(t, task.Enabled)
	assert.Equal(t, store.StatusFailed, task.LastRunStatus)
	assert.Contains(t, task.LastError, "invalid cron expression")
	assert.True(t, s.NextRun("broken").IsZero())
}

func TestRunNowRecordsRunLog(t *testing.T) {
	st := openStore(t)
	runner := &fakeRunner{}
	s := New(Config{Store: st, Runner: runner, Shell: echoShell})

	task, err := s.Create(&store.ScheduledTask{
		Name:     "refresh",
		CronExpr: "0 0 * * * *",
		Command:  "agent:refresh inbox",
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(task.ID))

	assert.Equal(t, []string{"refresh inbox"}, runner.Goals())

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, got.LastRunStatus)
	assert.Equal(t, 1, got.RunCount)
	require.NotNil(t, got.LastRunAt)

	logs, err := s.Logs(task.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.StatusSuccess, logs[0].Status)
	assert.Equal(t, "ran: refresh inbox", logs[0].Output)
}

func TestCommandGrammarRouting(t *testing.T) {
	st := openStore(t)
	runner := &fakeRunner{}
	var shellCmds []string
	shell := func(ctx context.Context, command string) (string, error) {
		shellCmds = append(shellCmds, command)
		return "ok", nil
	}
	s := New(Config{Store: st, Runner: runner, Shell: shell})

	for _, command := range []string{"agent:check mail", "shell:uptime", "date"} {
		task, err := s.Create(&store.ScheduledTask{
			Name:     command,
			CronExpr: "0 0 * * * *",
			Command:  command,
		})
		require.NoError(t, err)
		require.NoError(t, s.RunNow(task.ID))
	}

	assert.Equal(t, []string{"check mail"}, runner.Goals())
	assert.Equal(t, []string{"uptime", "date"}, shellCmds)
}

func TestFailedRunRecordsError(t *testing.T) {
	st := openStore(t)
	s := New(Config{Store: st, Shell: echoShell})

	task, err := s.Create(&store.ScheduledTask{
		Name:     "agent-without-runner",
		CronExpr: "0 0 * * * *",
		Command:  "agent:do a thing",
	})
	require.NoError(t, err)
	require.NoError(t, s.RunNow(task.ID))

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.LastRunStatus)
	assert.Contains(t, got.LastError, "no agent runner")
	assert.Equal(t, 1, got.RunCount)

	logs, err := s.Logs(task.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.StatusFailed, logs[0].Status)
}

func TestOverlappingTicksSkipNotQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real cron ticks")
	}

	st := openStore(t)
	runner := &fakeRunner{delay: 2500 * time.Millisecond}
	s := New(Config{Store: st, Runner: runner, Shell: echoShell})

	task, err := s.Create(&store.ScheduledTask{
		ID:       "slow",
		Name:     "slow",
		CronExpr: "* * * * * *", // every second
		Command:  "agent:slow job",
		Enabled:  true,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	// Wait out the in-flight execution before inspecting state.
	time.Sleep(3 * time.Second)

	assert.False(t, runner.overlap.Load(), "executions of one task must never overlap")
	assert.GreaterOrEqual(t, s.Skips(task.ID), 1, "ticks during a run are dropped with a skip")

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.RunCount, 1)

	logs, err := s.Logs(task.ID, 50)
	require.NoError(t, err)
	for i := 1; i < len(logs); i++ {
		// Newest first: each run must start after the previous one ended.
		assert.False(t, logs[i].EndedAt.After(logs[i-1].StartedAt.Add(time.Second)),
			"run windows must not overlap")
	}
}

func TestPauseResume(t *testing.T) {
	st := openStore(t)
	s := New(Config{Store: st, Shell: echoShell})
	require.NoError(t, s.Start())
	defer s.Stop()

	task, err := s.Create(&store.ScheduledTask{
		Name:     "toggle",
		CronExpr: "0 0 * * * *",
		Command:  "echo hi",
		Enabled:  true,
	})
	require.NoError(t, err)
	assert.False(t, s.NextRun(task.ID).IsZero())

	paused, err := s.Pause(task.ID)
	require.NoError(t, err)
	assert.False(t, paused.Enabled)
	assert.True(t, s.NextRun(task.ID).IsZero())

	resumed, err := s.Resume(task.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Enabled)
	assert.False(t, s.NextRun(task.ID).IsZero())
}

func TestDeleteCascadesRunLogs(t *testing.T) {
	st := openStore(t)
	s := New(Config{Store: st, Shell: echoShell})

	task, err := s.Create(&store.ScheduledTask{
		Name:     "doomed",
		CronExpr: "0 0 * * * *",
		Command:  "shell:echo hi",
	})
	require.NoError(t, err)
	require.NoError(t, s.RunNow(task.ID))

	require.NoError(t, s.Delete(task.ID))

	_, err = s.Get(task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	logs, err := st.ListRunLogs(task.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestUpdateResubscribes(t *testing.T) {
	st := openStore(t)
	s := New(Config{Store: st, Shell: echoShell})
	require.NoError(t, s.Start())
	defer s.Stop()

	task, err := s.Create(&store.ScheduledTask{
		Name:     "morning",
		CronExpr: "0 0 9 * * *",
		Command:  "echo hi",
		Enabled:  true,
	})
	require.NoError(t, err)

	expr := "0 30 9 * * *"
	updated, err := s.Update(task.ID, UpdateRequest{CronExpr: &expr})
	require.NoError(t, err)
	assert.Equal(t, expr, updated.CronExpr)
	assert.False(t, s.NextRun(task.ID).IsZero())

	bad := "nope"
	_, err = s.Update(task.ID, UpdateRequest{CronExpr: &bad})
	assert.Error(t, err)
}

// Package scheduler runs cron-driven tasks against the durable task
// table. Task commands use the same grammar as skills: "agent:<goal>"
// enters the reasoning loop, "shell:<cmd>" and bare commands run
// through the platform shell. Every completed run appends a run log
// row; executions of one task never overlap.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"

	"github.com/lavishq/lavis/internal/agent/skills"
	"github.com/lavishq/lavis/internal/events"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/store"
)

// DefaultRunTimeout bounds one task execution.
const DefaultRunTimeout = 10 * time.Minute

// cronParser validates 6-field expressions: second, minute, hour,
// day-of-month, month, day-of-week.
var cronParser = cronlib.NewParser(
	cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

// ParseCron validates a 6-field cron expression.
func ParseCron(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// AgentRunner feeds a goal through the reasoning loop.
type AgentRunner interface {
	RunTask(ctx context.Context, goal string) (string, error)
}

// ShellFunc runs a command line through the platform shell.
type ShellFunc func(ctx context.Context, command string) (string, error)

// Config wires a Scheduler.
type Config struct {
	Store  *store.Store
	Runner AgentRunner
	Shell  ShellFunc
	// RunTimeout bounds one execution; zero means DefaultRunTimeout.
	RunTimeout time.Duration
	// Notify, when set, receives a task-run event after every execution.
	Notify func(event string, payload map[string]any)
}

// Scheduler subscribes enabled tasks to a seconds-precision cron and
// executes them serialized per task id. A tick that fires while the
// previous run of the same task is still going is dropped with a
// logged skip, never queued.
type Scheduler struct {
	store      *store.Store
	runner     AgentRunner
	shell      ShellFunc
	runTimeout time.Duration
	notify     func(event string, payload map[string]any)

	cron *cronlib.Cron

	mu      sync.Mutex
	entries map[string]cronlib.EntryID
	running map[string]bool
	skips   map[string]int
	started bool
}

// New builds a Scheduler. Call Start to load tasks and begin ticking.
func New(cfg Config) *Scheduler {
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Scheduler{
		store:      cfg.Store,
		runner:     cfg.Runner,
		shell:      cfg.Shell,
		runTimeout: timeout,
		notify:     cfg.Notify,
		cron:       cronlib.New(cronlib.WithSeconds()),
		entries:    make(map[string]cronlib.EntryID),
		running:    make(map[string]bool),
		skips:      make(map[string]int),
	}
}

// Start loads every task row and subscribes the enabled ones. A row
// whose cron expression no longer parses is loaded paused with a FAILED
// status instead of aborting startup; other row errors are logged and
// skipped.
func (s *Scheduler) Start() error {
	tasks, err := s.store.ListTasks()
	if err != nil {
		return fmt.Errorf("load scheduled tasks: %w", err)
	}

	for i := range tasks {
		t := &tasks[i]
		if !t.Enabled {
			continue
		}
		if _, err := ParseCron(t.CronExpr); err != nil {
			logging.Warnf("task %s (%s): invalid cron %q, loading paused: %v", t.ID, t.Name, t.CronExpr, err)
			t.Enabled = false
			t.LastRunStatus = store.StatusFailed
			t.LastError = fmt.Sprintf("invalid cron expression: %v", err)
			if uerr := s.store.UpdateTask(t); uerr != nil {
				logging.Warnf("persist paused task %s: %v", t.ID, uerr)
			}
			continue
		}
		if err := s.subscribe(t.ID, t.CronExpr); err != nil {
			logging.Warnf("subscribe task %s: %v", t.ID, err)
		}
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()
	logging.Infof("scheduler started with %d subscribed tasks", len(s.entries))
	return nil
}

// Stop halts the tick source. In-flight executions finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if started {
		s.cron.Stop()
		logging.Infof("scheduler stopped")
	}
}

// Running reports whether the tick source is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// subscribe registers the task with the cron, replacing any previous
// subscription.
func (s *Scheduler) subscribe(id, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	entry, err := s.cron.AddFunc(expr, func() { s.tick(id) })
	if err != nil {
		return fmt.Errorf("schedule task %s: %w", id, err)
	}
	s.entries[id] = entry
	return nil
}

// unsubscribe removes the task from the cron.
func (s *Scheduler) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// tick handles one cron fire. Overlapping fires of the same task are
// dropped with a skip.
func (s *Scheduler) tick(id string) {
	s.mu.Lock()
	if s.running[id] {
		s.skips[id]++
		s.mu.Unlock()
		logging.Warnf("task %s still running, skipping this tick", id)
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()
	s.execute(id)
}

// Skips reports how many ticks of a task were dropped due to overlap.
func (s *Scheduler) Skips(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skips[id]
}

// execute runs the task once and records the outcome in the task row
// and the run log. Panics from the executors are folded into a FAILED
// run.
func (s *Scheduler) execute(id string) {
	task, err := s.store.GetTask(id)
	if err != nil {
		logging.Warnf("task %s vanished before execution: %v", id, err)
		return
	}

	started := time.Now()
	task.LastRunStatus = store.StatusRunning
	task.LastRunAt = &started
	if err := s.store.UpdateTask(task); err != nil {
		logging.Warnf("mark task %s running: %v", id, err)
	}

	output, runErr := s.runCommand(task.Command)
	ended := time.Now()

	log := &store.TaskRunLog{
		TaskID:     id,
		StartedAt:  started,
		EndedAt:    ended,
		Status:     store.StatusSuccess,
		Output:     output,
		DurationMs: ended.Sub(started).Milliseconds(),
	}
	task.LastRunStatus = store.StatusSuccess
	task.LastError = ""
	if runErr != nil {
		log.Status = store.StatusFailed
		log.Error = runErr.Error()
		task.LastRunStatus = store.StatusFailed
		task.LastError = runErr.Error()
	}
	task.RunCount++

	if err := s.store.AppendRunLog(log); err != nil {
		logging.Warnf("record run of task %s: %v", id, err)
	}
	if err := s.store.UpdateTask(task); err != nil {
		logging.Warnf("update task %s after run: %v", id, err)
	}
	logging.Infof("task %s (%s) finished: %s in %dms", id, task.Name, log.Status, log.DurationMs)

	if s.notify != nil {
		s.notify(events.TypeTaskRun, map[string]any{
			"task_id":     id,
			"name":        task.Name,
			"status":      log.Status,
			"duration_ms": log.DurationMs,
		})
	}
}

// runCommand dispatches by the command grammar.
func (s *Scheduler) runCommand(command string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task executor panicked: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	kind, rest := skills.SplitCommand(command)
	switch kind {
	case skills.KindAgent:
		if s.runner == nil {
			return "", fmt.Errorf("no agent runner configured")
		}
		return s.runner.RunTask(ctx, rest)
	default:
		if s.shell == nil {
			return "", fmt.Errorf("no shell configured")
		}
		return s.shell(ctx, rest)
	}
}

// Create validates and stores a new task, subscribing it when enabled.
func (s *Scheduler) Create(t *store.ScheduledTask) (*store.ScheduledTask, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if strings.TrimSpace(t.Command) == "" {
		return nil, fmt.Errorf("task command is required")
	}
	if _, err := ParseCron(t.CronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", t.CronExpr, err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	if err := s.store.CreateTask(t); err != nil {
		return nil, err
	}
	if t.Enabled {
		if err := s.subscribe(t.ID, t.CronExpr); err != nil {
			return nil, err
		}
	}
	logging.Infof("created task %s (%s) on %q", t.ID, t.Name, t.CronExpr)
	return t, nil
}

// List returns every task row.
func (s *Scheduler) List() ([]store.ScheduledTask, error) {
	return s.store.ListTasks()
}

// Get returns one task row.
func (s *Scheduler) Get(id string) (*store.ScheduledTask, error) {
	return s.store.GetTask(id)
}

// NextRun reports when a subscribed task fires next. Zero time for
// paused or unknown tasks.
func (s *Scheduler) NextRun(id string) time.Time {
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entry).Next
}

// UpdateRequest carries partial task updates; nil fields are untouched.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CronExpr    *string `json:"cron_expr"`
	Command     *string `json:"command"`
	Enabled     *bool   `json:"enabled"`
}

// Update rewrites a task and resubscribes it to match.
func (s *Scheduler) Update(id string, req UpdateRequest) (*store.ScheduledTask, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		task.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.CronExpr != nil {
		task.CronExpr = strings.TrimSpace(*req.CronExpr)
	}
	if req.Command != nil {
		task.Command = strings.TrimSpace(*req.Command)
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}

	if task.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if task.Command == "" {
		return nil, fmt.Errorf("task command is required")
	}
	if _, err := ParseCron(task.CronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", task.CronExpr, err)
	}

	if err := s.store.UpdateTask(task); err != nil {
		return nil, err
	}

	s.unsubscribe(id)
	if task.Enabled {
		if err := s.subscribe(id, task.CronExpr); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// Pause unsubscribes a task without deleting it.
func (s *Scheduler) Pause(id string) (*store.ScheduledTask, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	s.unsubscribe(id)
	task.Enabled = false
	if err := s.store.UpdateTask(task); err != nil {
		return nil, err
	}
	logging.Infof("paused task %s", id)
	return task, nil
}

// Resume revalidates and resubscribes a paused task.
func (s *Scheduler) Resume(id string) (*store.ScheduledTask, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if _, err := ParseCron(task.CronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", task.CronExpr, err)
	}
	task.Enabled = true
	if err := s.store.UpdateTask(task); err != nil {
		return nil, err
	}
	if err := s.subscribe(id, task.CronExpr); err != nil {
		return nil, err
	}
	logging.Infof("resumed task %s", id)
	return task, nil
}

// Delete unsubscribes and removes a task; run logs cascade with the
// row.
func (s *Scheduler) Delete(id string) error {
	s.unsubscribe(id)
	if err := s.store.DeleteTask(id); err != nil {
		return err
	}
	logging.Infof("deleted task %s", id)
	return nil
}

// RunNow executes a task immediately, outside its schedule. Returns an
// error if the task is mid-run; the caller can retry once it finishes.
func (s *Scheduler) RunNow(id string) error {
	if _, err := s.store.GetTask(id); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		return fmt.Errorf("task %s is already running", id)
	}
	s.running[id] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()
	s.execute(id)
	return nil
}

// Logs returns the most recent run logs for a task, newest first.
func (s *Scheduler) Logs(id string, limit int) ([]store.TaskRunLog, error) {
	if _, err := s.store.GetTask(id); err != nil {
		return nil, err
	}
	return s.store.ListRunLogs(id, limit)
}

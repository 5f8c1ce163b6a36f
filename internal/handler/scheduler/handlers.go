// Package scheduler exposes scheduled task CRUD and control over HTTP.
package scheduler

import (
	"errors"
	"net/http"
	"time"

	"github.com/lavishq/lavis/internal/agent/scheduler"
	"github.com/lavishq/lavis/internal/httputil"
	"github.com/lavishq/lavis/internal/store"
	"github.com/lavishq/lavis/internal/svc"
	"github.com/lavishq/lavis/internal/types"
)

const logsDefault = 50

func taskItem(svcCtx *svc.ServiceContext, t *store.ScheduledTask) types.TaskItem {
	item := types.TaskItem{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		CronExpr:      t.CronExpr,
		Command:       t.Command,
		Enabled:       t.Enabled,
		LastRunStatus: t.LastRunStatus,
		LastError:     t.LastError,
		RunCount:      t.RunCount,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.Format(time.RFC3339),
	}
	if t.LastRunAt != nil {
		item.LastRunAt = t.LastRunAt.Format(time.RFC3339)
	}
	if next := svcCtx.Scheduler.NextRun(t.ID); !next.IsZero() {
		item.NextRunAt = next.Format(time.RFC3339)
	}
	return item
}

func writeTaskErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "task not found")
		return
	}
	httputil.Error(w, err)
}

// ListTasksHandler returns every scheduled task with its next fire time.
func ListTasksHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := svcCtx.Scheduler.List()
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		items := make([]types.TaskItem, 0, len(tasks))
		for i := range tasks {
			items = append(items, taskItem(svcCtx, &tasks[i]))
		}
		httputil.OkJSON(w, types.ListTasksResponse{Tasks: items, Total: len(items)})
	}
}

// CreateTaskHandler validates and stores a new task, subscribing it
// when enabled.
func CreateTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		task, err := svcCtx.Scheduler.Create(&store.ScheduledTask{
			Name:        req.Name,
			Description: req.Description,
			CronExpr:    req.CronExpr,
			Command:     req.Command,
			Enabled:     req.Enabled,
		})
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// GetTaskHandler returns one task by id.
func GetTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := svcCtx.Scheduler.Get(httputil.PathVar(r, "id"))
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// UpdateTaskHandler applies a partial update and resubscribes the task.
func UpdateTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.UpdateTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		task, err := svcCtx.Scheduler.Update(httputil.PathVar(r, "id"), scheduler.UpdateRequest{
			Name:        req.Name,
			Description: req.Description,
			CronExpr:    req.CronExpr,
			Command:     req.Command,
			Enabled:     req.Enabled,
		})
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// DeleteTaskHandler removes a task and its run logs.
func DeleteTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svcCtx.Scheduler.Delete(httputil.PathVar(r, "id")); err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, map[string]bool{"success": true})
	}
}

// PauseTaskHandler disables a task without deleting it.
func PauseTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := svcCtx.Scheduler.Pause(httputil.PathVar(r, "id"))
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// ResumeTaskHandler re-enables a paused task.
func ResumeTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := svcCtx.Scheduler.Resume(httputil.PathVar(r, "id"))
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// RunTaskHandler fires a task immediately, outside its schedule. The
// run is synchronous; overlap with an in-flight run is rejected.
func RunTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := httputil.PathVar(r, "id")
		if err := svcCtx.Scheduler.RunNow(id); err != nil {
			writeTaskErr(w, err)
			return
		}
		task, err := svcCtx.Scheduler.Get(id)
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		httputil.OkJSON(w, types.TaskResponse{Task: taskItem(svcCtx, task)})
	}
}

// TaskHistoryHandler returns the most recent run logs of a task.
func TaskHistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := httputil.QueryInt(r, "limit", logsDefault)
		logs, err := svcCtx.Scheduler.Logs(httputil.PathVar(r, "id"), limit)
		if err != nil {
			writeTaskErr(w, err)
			return
		}
		items := make([]types.RunLogItem, 0, len(logs))
		for _, l := range logs {
			items = append(items, types.RunLogItem{
				ID:         l.ID,
				TaskID:     l.TaskID,
				StartedAt:  l.StartedAt.Format(time.RFC3339),
				EndedAt:    l.EndedAt.Format(time.RFC3339),
				Status:     l.Status,
				Output:     l.Output,
				Error:      l.Error,
				DurationMs: l.DurationMs,
			})
		}
		httputil.OkJSON(w, types.TaskHistoryResponse{Logs: items})
	}
}

// StartHandler starts the cron engine.
func StartHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svcCtx.Scheduler.Start(); err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		httputil.OkJSON(w, types.SchedulerStateResponse{Running: svcCtx.Scheduler.Running()})
	}
}

// StopHandler stops the cron engine; tasks stay stored.
func StopHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svcCtx.Scheduler.Stop()
		httputil.OkJSON(w, types.SchedulerStateResponse{Running: svcCtx.Scheduler.Running()})
	}
}

// StateHandler reports whether the cron engine is ticking.
func StateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, types.SchedulerStateResponse{Running: svcCtx.Scheduler.Running()})
	}
}

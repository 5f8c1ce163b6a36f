// Package agent exposes the reasoning loop over HTTP.
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/lavishq/lavis/internal/agent/runner"
	"github.com/lavishq/lavis/internal/events"
	"github.com/lavishq/lavis/internal/httputil"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/screen"
	"github.com/lavishq/lavis/internal/store"
	"github.com/lavishq/lavis/internal/svc"
	"github.com/lavishq/lavis/internal/types"
)

const (
	thumbnailWidth  = 480
	historyDefault  = 100
	timestampFormat = time.RFC3339
)

// ChatHandler runs one step-capped chat invocation.
func ChatHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if req.Message == "" {
			httputil.BadRequest(w, "message is required")
			return
		}
		respond(svcCtx, w, r.Context(), req.Message, svcCtx.Agent.Chat)
	}
}

// TaskHandler runs one goal-directed invocation with no step cap.
func TaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.TaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if req.Goal == "" {
			httputil.BadRequest(w, "goal is required")
			return
		}
		respond(svcCtx, w, r.Context(), req.Goal, svcCtx.Agent.RunTask)
	}
}

// respond drives one reasoning invocation and renders the shared
// response shape. Loop-level failures (❌ lines, step caps) come back
// as response text with success=true; only the missing-model
// precondition flips success off.
func respond(svcCtx *svc.ServiceContext, w http.ResponseWriter, ctx context.Context,
	text string, invoke func(ctx context.Context, text string) (string, error)) {
	svcCtx.Events.Publish(events.TypeStatus, map[string]any{"state": "running"})
	start := time.Now()
	resp, err := invoke(ctx, text)
	elapsed := time.Since(start).Milliseconds()
	svcCtx.Events.Publish(events.TypeStatus, map[string]any{"state": svcCtx.Agent.State()})

	if err != nil {
		if errors.Is(err, runner.ErrUnavailable) {
			httputil.OkJSON(w, types.AgentResponse{
				Success:    false,
				Response:   err.Error(),
				DurationMs: elapsed,
			})
			return
		}
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, types.AgentResponse{
		Success:    true,
		Response:   resp,
		DurationMs: elapsed,
	})
}

// StopHandler requests cooperative cancellation of the running
// invocation, if any.
func StopHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "idle"
		if svcCtx.Agent.Stop() {
			status = "stopping"
		}
		httputil.OkJSON(w, types.StopResponse{Status: status})
	}
}

// ResetHandler closes the active session and opens a fresh one.
func ResetHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := svcCtx.Memory.ResetSession()
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		svcCtx.Capturer.Reset()
		logging.Infof("session reset, new key %s", key)
		httputil.OkJSON(w, types.ResetResponse{Success: true, SessionKey: key})
	}
}

// StatusHandler reports model availability and loop state.
func StatusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, types.StatusResponse{
			Available:         svcCtx.Agent.Available(),
			Model:             svcCtx.Agent.ModelName(),
			OrchestratorState: svcCtx.Agent.State(),
		})
	}
}

// ScreenshotHandler captures a fresh frame outside the dedup path, for
// UI previews. ?thumbnail=true downscales before encoding.
func ScreenshotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ScreenshotRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}

		frame, err := svcCtx.Perceiver.Capture(r.Context())
		if err != nil {
			httputil.InternalError(w, "screen capture failed: "+err.Error())
			return
		}

		data := frame.Data
		if req.Thumbnail {
			if small, err := screen.Thumbnail(data, thumbnailWidth); err == nil {
				data = small
			}
		}
		httputil.OkJSON(w, types.ScreenshotResponse{
			Success: true,
			Image:   base64.StdEncoding.EncodeToString(data),
			Size:    len(data),
		})
	}
}

// HistoryHandler returns the persisted messages of the active session.
func HistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := svcCtx.Memory.CurrentSessionKey()
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		limit := httputil.QueryInt(r, "limit", historyDefault)
		msgs, err := svcCtx.Store.GetMessages(key, limit)
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}

		items := make([]types.HistoryMessage, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, types.HistoryMessage{
				Role:         m.Role,
				Content:      m.Content,
				ImageID:      m.ImageID,
				TurnID:       m.TurnID,
				IsCompressed: m.IsCompressed,
				CreatedAt:    m.CreatedAt.Format(timestampFormat),
			})
		}
		httputil.OkJSON(w, types.HistoryResponse{SessionKey: key, Messages: items})
	}
}

// DeleteHistoryHandler clears the active session's persisted messages
// and the in-memory window.
func DeleteHistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := svcCtx.Memory.CurrentSessionKey()
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		if err := svcCtx.Store.DeleteSessionMessages(key); err != nil && !errors.Is(err, store.ErrNotFound) {
			httputil.InternalError(w, err.Error())
			return
		}
		svcCtx.Memory.Window().Clear()
		httputil.OkJSON(w, types.DeleteHistoryResponse{Success: true})
	}
}

// EventsHandler upgrades to the websocket event stream.
func EventsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return svcCtx.Events.Handler()
}

// Package skills exposes skill CRUD and execution over HTTP.
package skills

import (
	"errors"
	"net/http"
	"time"

	"github.com/lavishq/lavis/internal/agent/skills"
	"github.com/lavishq/lavis/internal/httputil"
	"github.com/lavishq/lavis/internal/markdown"
	"github.com/lavishq/lavis/internal/svc"
	"github.com/lavishq/lavis/internal/types"
)

func skillItem(svcCtx *svc.ServiceContext, s *skills.Skill, withBody bool) types.SkillItem {
	item := types.SkillItem{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		Version:     s.Version,
		Author:      s.Author,
		Command:     s.Command,
	}
	if row, err := svcCtx.Store.GetSkill(s.ID); err == nil {
		item.UseCount = row.UseCount
	}
	if withBody {
		item.Body = s.Body
		item.HTML = markdown.Render(s.Body)
	}
	return item
}

func writeSkillErr(w http.ResponseWriter, err error) {
	if errors.Is(err, skills.ErrNotFound) {
		httputil.NotFound(w, "skill not found")
		return
	}
	httputil.Error(w, err)
}

// ListHandler returns every loaded skill, metadata only.
func ListHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loaded := svcCtx.Skills.List()
		items := make([]types.SkillItem, 0, len(loaded))
		for _, s := range loaded {
			items = append(items, skillItem(svcCtx, s, false))
		}
		httputil.OkJSON(w, types.ListSkillsResponse{Skills: items, Total: len(items)})
	}
}

// GetHandler returns one skill with its body rendered to HTML.
func GetHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skill, err := svcCtx.Skills.Get(httputil.PathVar(r, "id"))
		if err != nil {
			writeSkillErr(w, err)
			return
		}
		httputil.OkJSON(w, types.SkillResponse{Skill: skillItem(svcCtx, skill, true)})
	}
}

// CreateHandler writes a new SKILL.md and loads it.
func CreateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req skills.CreateRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		skill, err := svcCtx.Skills.Create(req)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.OkJSON(w, types.SkillResponse{Skill: skillItem(svcCtx, skill, true)})
	}
}

// UpdateHandler rewrites a skill file in place.
func UpdateHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req skills.UpdateRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		skill, err := svcCtx.Skills.Update(httputil.PathVar(r, "id"), req)
		if err != nil {
			writeSkillErr(w, err)
			return
		}
		httputil.OkJSON(w, types.SkillResponse{Skill: skillItem(svcCtx, skill, true)})
	}
}

// DeleteHandler removes a skill directory and deregisters its tool.
func DeleteHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svcCtx.Skills.Delete(httputil.PathVar(r, "id")); err != nil {
			writeSkillErr(w, err)
			return
		}
		httputil.OkJSON(w, map[string]bool{"success": true})
	}
}

// ExecuteHandler runs a skill's command synchronously, with template
// parameters substituted.
func ExecuteHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ExecuteSkillRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		start := time.Now()
		out, err := svcCtx.Skills.Execute(r.Context(), httputil.PathVar(r, "id"), req.Params)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			if errors.Is(err, skills.ErrNotFound) {
				httputil.NotFound(w, "skill not found")
				return
			}
			httputil.OkJSON(w, types.ExecuteSkillResponse{
				Success:    false,
				Output:     err.Error(),
				DurationMs: elapsed,
			})
			return
		}
		httputil.OkJSON(w, types.ExecuteSkillResponse{
			Success:    true,
			Output:     out,
			DurationMs: elapsed,
		})
	}
}

// ReloadHandler rescans the skills directory.
func ReloadHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svcCtx.Skills.Reload(); err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		httputil.OkJSON(w, types.ReloadResponse{
			Success: true,
			Count:   len(svcCtx.Skills.List()),
		})
	}
}

// CategoriesHandler returns the distinct skill categories.
func CategoriesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, types.CategoriesResponse{
			Categories: svcCtx.Skills.Categories(),
		})
	}
}

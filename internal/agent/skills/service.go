package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lavishq/lavis/internal/agent/tools"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/store"
)

// ErrNotFound is returned for unknown skill ids.
var ErrNotFound = errors.New("skill not found")

// ShellFunc runs a command line through the platform shell and returns
// its combined output.
type ShellFunc func(ctx context.Context, command string) (string, error)

// AgentRunner feeds a goal through the reasoning loop. Satisfied by
// the runner package; narrow so this package stays below it.
type AgentRunner interface {
	RunTask(ctx context.Context, goal string) (string, error)
}

// Deps wires the service to its surroundings.
type Deps struct {
	Loader *Loader
	Store  *store.Store
	Shell  ShellFunc
	Runner AgentRunner
	// Exec is the shared context slot read by the reasoning loop.
	// Nil allocates a private one.
	Exec *ExecutionContext
}

// Service owns the skill lifecycle: CRUD against the skill files,
// execution with knowledge injection, and mirroring into the store and
// the tool registry.
type Service struct {
	loader *Loader
	store  *store.Store
	shell  ShellFunc
	runner AgentRunner
	exec   *ExecutionContext

	regMu    sync.Mutex
	registry *tools.Registry
	regNames map[string]bool
}

// NewService builds the service and subscribes it to loader reloads.
func NewService(d Deps) *Service {
	if d.Exec == nil {
		d.Exec = &ExecutionContext{}
	}
	s := &Service{
		loader:   d.Loader,
		store:    d.Store,
		shell:    d.Shell,
		runner:   d.Runner,
		exec:     d.Exec,
		regNames: make(map[string]bool),
	}
	s.loader.OnChange(func([]*Skill) { s.skillsChanged() })
	return s
}

// ExecutionContext exposes the shared knowledge slot.
func (s *Service) ExecutionContext() *ExecutionContext { return s.exec }

// SetRunner installs the reasoning-loop entry point. Split from
// NewService so construction order does not matter.
func (s *Service) SetRunner(r AgentRunner) { s.runner = r }

// List returns all loaded skills.
func (s *Service) List() []*Skill { return s.loader.List() }

// Get returns one skill by id.
func (s *Service) Get(id string) (*Skill, error) {
	skill, ok := s.loader.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return skill, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (s *Service) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, skill := range s.loader.List() {
		if skill.Category == "" || seen[skill.Category] {
			continue
		}
		seen[skill.Category] = true
		out = append(out, skill.Category)
	}
	sort.Strings(out)
	return out
}

// Reload rebuilds the skill set from disk and resyncs the store and
// tool registry.
func (s *Service) Reload() error {
	if err := s.loader.LoadAll(); err != nil {
		return err
	}
	s.skillsChanged()
	return nil
}

// CreateRequest carries the fields for a new skill.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Command     string `json:"command"`
	Body        string `json:"body"`
}

// Create writes a new skill directory and loads it.
func (s *Service) Create(req CreateRequest) (*Skill, error) {
	skill := &Skill{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Version:     strings.TrimSpace(req.Version),
		Author:      strings.TrimSpace(req.Author),
		Command:     strings.TrimSpace(req.Command),
		Body:        strings.TrimSpace(req.Body),
	}
	if err := skill.Validate(); err != nil {
		return nil, err
	}

	id := Slug(skill.Name)
	if id == "" {
		return nil, fmt.Errorf("skill name %q does not yield a usable id", req.Name)
	}
	if _, ok := s.loader.Get(id); ok {
		return nil, fmt.Errorf("skill %s already exists", id)
	}

	dir := filepath.Join(s.loader.Dir(), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create skill dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SkillFileName), renderSkillFile(skill), 0o644); err != nil {
		return nil, fmt.Errorf("write skill file: %w", err)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// UpdateRequest carries partial updates; nil fields are untouched.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Version     *string `json:"version"`
	Author      *string `json:"author"`
	Command     *string `json:"command"`
	Body        *string `json:"body"`
}

// Update rewrites a skill file in place. The id is the directory name
// and never changes, even when the display name does.
func (s *Service) Update(id string, req UpdateRequest) (*Skill, error) {
	current, ok := s.loader.Get(id)
	if !ok {
		return nil, ErrNotFound
	}

	updated := *current
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&updated.Name, req.Name)
	apply(&updated.Description, req.Description)
	apply(&updated.Category, req.Category)
	apply(&updated.Version, req.Version)
	apply(&updated.Author, req.Author)
	apply(&updated.Command, req.Command)
	apply(&updated.Body, req.Body)

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(current.Path, renderSkillFile(&updated), 0o644); err != nil {
		return nil, fmt.Errorf("write skill file: %w", err)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete removes the skill directory and its mirrored row.
func (s *Service) Delete(id string) error {
	skill, ok := s.loader.Get(id)
	if !ok {
		return ErrNotFound
	}
	if err := os.RemoveAll(filepath.Dir(skill.Path)); err != nil {
		return fmt.Errorf("remove skill: %w", err)
	}
	if s.store != nil {
		if err := s.store.DeleteSkill(id); err != nil {
			logging.Warnf("delete mirrored skill row %s: %v", id, err)
		}
	}
	return s.Reload()
}

// Execute runs a skill: placeholders substituted, knowledge installed
// for the enclosed reasoning invocation, command dispatched by its
// prefix. The knowledge slot is cleared on every path out.
func (s *Service) Execute(ctx context.Context, id string, params map[string]string) (string, error) {
	skill, ok := s.loader.Get(id)
	if !ok {
		return "", ErrNotFound
	}

	command := skill.RenderCommand(params)

	s.exec.Install(skill.Name, skill.Body)
	defer s.exec.Clear()

	kind, rest := SplitCommand(command)
	logging.Infof("executing skill %s (%s)", skill.ID, skill.Name)

	var out string
	var err error
	switch kind {
	case KindAgent:
		if s.runner == nil {
			err = errors.New("no agent runner configured")
		} else {
			out, err = s.runner.RunTask(ctx, rest)
		}
	default:
		if s.shell == nil {
			err = errors.New("no shell configured")
		} else {
			out, err = s.shell(ctx, rest)
		}
	}

	if s.store != nil {
		if terr := s.store.TouchSkill(skill.ID); terr != nil {
			logging.Warnf("bump skill usage %s: %v", skill.ID, terr)
		}
	}
	return out, err
}

// AttachRegistry exposes every loaded skill as an invocable tool and
// keeps the registry in sync across reloads.
func (s *Service) AttachRegistry(reg *tools.Registry) {
	s.regMu.Lock()
	s.registry = reg
	s.regMu.Unlock()
	s.syncRegistry()
}

func (s *Service) skillsChanged() {
	s.syncStore()
	s.syncRegistry()
}

func (s *Service) syncRegistry() {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if s.registry == nil {
		return
	}

	for name := range s.regNames {
		s.registry.Unregister(name)
	}
	s.regNames = make(map[string]bool)

	for _, skill := range s.loader.List() {
		tool := s.skillTool(skill)
		if err := s.registry.Register(tool); err != nil {
			// Name collisions with built-ins (or another skill) lose.
			logging.Warnf("skill %q not exposed as a tool: %v", skill.Name, err)
			continue
		}
		s.regNames[skill.Name] = true
	}
}

func (s *Service) skillTool(skill *Skill) *tools.Tool {
	id := skill.ID
	description := skill.Description
	if description == "" {
		description = fmt.Sprintf("Run the %s skill.", skill.Name)
	}
	return &tools.Tool{
		Name:         skill.Name,
		Description:  description,
		Schema:       skillSchema(skill),
		VisualImpact: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			params := make(map[string]string, len(args))
			for k, v := range args {
				if str, ok := v.(string); ok {
					params[k] = str
				} else {
					params[k] = fmt.Sprintf("%v", v)
				}
			}
			return s.Execute(ctx, id, params)
		},
	}
}

// skillSchema derives a parameter schema from the command's
// placeholders; each becomes a required string.
func skillSchema(skill *Skill) json.RawMessage {
	names := skill.Placeholders()
	props := make(map[string]any, len(names))
	for _, name := range names {
		props[name] = map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Value for the {{%s}} placeholder", name),
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(names) > 0 {
		schema["required"] = names
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type": "object", "properties": {}}`)
	}
	return raw
}

func (s *Service) syncStore() {
	if s.store == nil {
		return
	}

	onDisk := map[string]bool{}
	for _, skill := range s.loader.List() {
		onDisk[skill.ID] = true
		row := &store.SkillRow{
			ID:          skill.ID,
			Name:        skill.Name,
			Description: skill.Description,
			Category:    skill.Category,
			Version:     skill.Version,
			Author:      skill.Author,
			Body:        skill.Body,
			Command:     skill.Command,
			Enabled:     true,
			Source:      "file",
		}
		if err := s.store.UpsertSkill(row); err != nil {
			logging.Warnf("mirror skill %s: %v", skill.ID, err)
		}
	}

	rows, err := s.store.ListSkills()
	if err != nil {
		logging.Warnf("list mirrored skills: %v", err)
		return
	}
	for _, row := range rows {
		if row.Source == "file" && !onDisk[row.ID] {
			if err := s.store.DeleteSkill(row.ID); err != nil {
				logging.Warnf("drop stale skill row %s: %v", row.ID, err)
			}
		}
	}
}

// renderSkillFile serializes a skill back to SKILL.md form.
func renderSkillFile(skill *Skill) []byte {
	meta, _ := yaml.Marshal(skill)

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	if skill.Body != "" {
		b.WriteString(skill.Body)
		b.WriteString("\n")
	}
	return b.Bytes()
}

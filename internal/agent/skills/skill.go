// Package skills loads user-authored skills from disk and executes
// them. A skill is one SKILL.md file: YAML frontmatter with the
// metadata and command, then a free-form knowledge body that gets
// injected into the reasoning prompt for the invocation that runs the
// skill.
//
//	---
//	name: sign-in
//	description: Log into the staging console
//	command: "agent:log in as {{user}}"
//	---
//
//	The staging console lives at ...
package skills

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one parsed SKILL.md. ID is the directory name the file was
// loaded from, not a frontmatter field.
type Skill struct {
	ID          string `yaml:"-" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description"`
	Category    string `yaml:"category,omitempty" json:"category"`
	Version     string `yaml:"version,omitempty" json:"version"`
	Author      string `yaml:"author,omitempty" json:"author"`
	Command     string `yaml:"command" json:"command"`

	// Body is the markdown after the frontmatter: the knowledge the
	// agent reads while executing the skill.
	Body string `yaml:"-" json:"body"`

	// Path is where the skill was loaded from.
	Path string `yaml:"-" json:"-"`
}

// Validate checks the required frontmatter keys.
func (s *Skill) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("skill name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("skill %q: command is required", s.Name)
	}
	return nil
}

// Parse reads a SKILL.md payload. Unknown frontmatter keys are
// rejected so typos surface at load time instead of silently dropping
// metadata.
func Parse(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	dec := yaml.NewDecoder(bytes.NewReader(frontmatter))
	dec.KnownFields(true)
	if err := dec.Decode(&skill); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	skill.Body = string(bytes.TrimSpace(body))

	if err := skill.Validate(); err != nil {
		return nil, err
	}
	return &skill, nil
}

// splitFrontmatter separates the fenced YAML header from the markdown
// body. The file must open with --- on the first line and carry a
// closing --- fence; CRLF line endings are tolerated.
func splitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	rest, ok := cutFence(data)
	if !ok {
		return nil, nil, fmt.Errorf("skill file must start with a --- frontmatter fence")
	}

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("skill file is missing the closing --- fence")
	}
	frontmatter = bytes.TrimSuffix(rest[:end], []byte("\r"))

	body = rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return frontmatter, body, nil
}

func cutFence(data []byte) ([]byte, bool) {
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, false
	}
	rest := data[len("---"):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if !bytes.HasPrefix(rest, []byte("\n")) {
		return nil, false
	}
	return rest[1:], true
}

// CommandKind says how a skill command is dispatched.
type CommandKind int

const (
	// KindShell runs the command through the platform shell. Bare
	// commands without a prefix default here.
	KindShell CommandKind = iota
	// KindAgent feeds the command to the reasoning loop as a goal.
	KindAgent
)

const (
	agentPrefix = "agent:"
	shellPrefix = "shell:"
)

// SplitCommand classifies a rendered command and strips its prefix.
func SplitCommand(command string) (CommandKind, string) {
	trimmed := strings.TrimSpace(command)
	switch {
	case strings.HasPrefix(trimmed, agentPrefix):
		return KindAgent, strings.TrimSpace(trimmed[len(agentPrefix):])
	case strings.HasPrefix(trimmed, shellPrefix):
		return KindShell, strings.TrimSpace(trimmed[len(shellPrefix):])
	default:
		return KindShell, trimmed
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderCommand substitutes {{param}} placeholders with the supplied
// values. Placeholders without a value stay in place so the gap is
// visible in whatever the command produces.
func (s *Skill) RenderCommand(params map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s.Command, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := params[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the parameter names the command references, in
// order of first appearance.
func (s *Skill) Placeholders() []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(s.Command, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Slug derives a filesystem-safe skill id from a display name.
func Slug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

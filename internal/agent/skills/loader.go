package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lavishq/lavis/internal/logging"
)

// SkillFileName is the definition file expected in each skill
// directory.
const SkillFileName = "SKILL.md"

// DefaultReloadInterval is how often the watcher folds accumulated
// file events into one rebuild.
const DefaultReloadInterval = 5 * time.Second

// Loader owns the on-disk skill set. Skills live one per directory:
//
//	skills/
//	├── sign-in/
//	│   └── SKILL.md
//	└── weekly-report/
//	    └── SKILL.md
//
// The directory name is the skill id.
type Loader struct {
	mu     sync.RWMutex
	dir    string
	skills map[string]*Skill

	interval time.Duration
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	dirty    atomic.Bool
	onChange func([]*Skill)
}

// NewLoader creates a loader rooted at dir. The directory does not
// need to exist yet.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		skills:   make(map[string]*Skill),
		interval: DefaultReloadInterval,
	}
}

// Dir returns the skills root.
func (l *Loader) Dir() string { return l.dir }

// LoadAll rebuilds the skill set from disk. A file that fails to parse
// is logged and skipped so one broken skill cannot take down the rest.
func (l *Loader) LoadAll() error {
	loaded := make(map[string]*Skill)

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.replace(loaded)
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path, ok := findSkillFile(filepath.Join(l.dir, entry.Name()))
		if !ok {
			continue
		}
		skill, err := loadFile(path)
		if err != nil {
			logging.Warnf("skipping skill %s: %v", path, err)
			continue
		}
		skill.ID = entry.Name()
		loaded[skill.ID] = skill
	}

	l.replace(loaded)
	logging.Infof("loaded %d skills from %s", len(loaded), l.dir)
	return nil
}

func (l *Loader) replace(skills map[string]*Skill) {
	l.mu.Lock()
	l.skills = skills
	l.mu.Unlock()
}

func loadFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	skill, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if skill.Version == "" {
		skill.Version = "1.0.0"
	}
	skill.Path = path
	return skill, nil
}

// findSkillFile locates SKILL.md inside dir, tolerating case
// differences.
func findSkillFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), SkillFileName) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

// OnChange registers the callback fired after a watcher-triggered
// rebuild. Set it before Watch.
func (l *Loader) OnChange(fn func([]*Skill)) {
	l.onChange = fn
}

// Watch starts hot reload: file events mark the set dirty, and a
// ticker folds them into at most one rebuild per interval.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create skills watcher: %w", err)
	}
	l.watcher = watcher

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	if err := watcher.Add(l.dir); err != nil {
		logging.Warnf("cannot watch %s: %v", l.dir, err)
	} else if entries, err := os.ReadDir(l.dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				if err := watcher.Add(filepath.Join(l.dir, entry.Name())); err != nil {
					logging.Debugf("cannot watch %s: %v", entry.Name(), err)
				}
			}
		}
	}

	go l.watchLoop(ctx)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logging.Errorf("skills watcher: %v", err)
		case <-ticker.C:
			if l.dirty.CompareAndSwap(true, false) {
				l.reload()
			}
		}
	}
}

func (l *Loader) handleEvent(event fsnotify.Event) {
	// New skill directories must be watched before their SKILL.md
	// lands, or the write event is missed.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := l.watcher.Add(event.Name); err != nil {
				logging.Debugf("cannot watch %s: %v", event.Name, err)
			}
		}
	}
	l.dirty.Store(true)
}

func (l *Loader) reload() {
	if err := l.LoadAll(); err != nil {
		logging.Errorf("skills reload: %v", err)
		return
	}
	if l.onChange != nil {
		l.onChange(l.List())
	}
}

// Stop halts the watcher.
func (l *Loader) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// Get returns a skill by id.
func (l *Loader) Get(id string) (*Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	skill, ok := l.skills[id]
	return skill, ok
}

// List returns the loaded skills sorted by name.
func (l *Loader) List() []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	skills := make([]*Skill, 0, len(l.skills))
	for _, skill := range l.skills {
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Count returns how many skills are loaded.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.skills)
}

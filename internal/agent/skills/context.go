package skills

import "sync"

// ExecutionContext carries a skill's knowledge body from Execute into
// the system prompt of the reasoning invocation enclosed by it.
// Install and Clear bracket one execution; the body is visible to
// whatever prompt assembly happens between them and to nothing after.
type ExecutionContext struct {
	mu        sync.Mutex
	skillName string
	body      string
	active    bool
}

// Install records the skill whose knowledge should augment the next
// assembled system prompt.
func (c *ExecutionContext) Install(skillName, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skillName = skillName
	c.body = body
	c.active = true
}

// Clear removes the installed knowledge. Safe to call when nothing is
// installed.
func (c *ExecutionContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skillName = ""
	c.body = ""
	c.active = false
}

// Active returns the installed skill knowledge, if any.
func (c *ExecutionContext) Active() (skillName, body string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skillName, c.body, c.active
}

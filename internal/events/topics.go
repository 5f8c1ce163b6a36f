package events

// Event types published by the core.
const (
	// TypeStatus carries orchestrator state transitions: idle, running,
	// stopping, error.
	TypeStatus = "agent.status"
	// TypeToolDispatch fires before a tool executes; payload carries
	// the tool name.
	TypeToolDispatch = "agent.tool"
	// TypeToolsChanged fires when the tool set mutates (skill reloads).
	TypeToolsChanged = "agent.tools_changed"
	// TypeTurnStart and TypeTurnEnd bracket one reasoning turn.
	TypeTurnStart = "agent.turn_start"
	TypeTurnEnd   = "agent.turn_end"
	// TypeTaskRun fires when a scheduled task finishes a run.
	TypeTaskRun = "scheduler.task_run"
)

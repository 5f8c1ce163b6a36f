// Package types holds the request and response structs of the HTTP
// surface.
package types

// --- Agent ---

type ChatRequest struct {
	Message string `json:"message"`
}

type TaskRequest struct {
	Goal string `json:"goal"`
}

type AgentResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	DurationMs int64  `json:"duration_ms"`
}

type StopResponse struct {
	Status string `json:"status"`
}

type ResetResponse struct {
	Success    bool   `json:"success"`
	SessionKey string `json:"session_key"`
}

type StatusResponse struct {
	Available         bool   `json:"available"`
	Model             string `json:"model"`
	OrchestratorState string `json:"orchestrator_state"`
}

type ScreenshotRequest struct {
	Thumbnail bool `form:"thumbnail"`
}

type ScreenshotResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image"`
	Size    int    `json:"size"`
}

type HistoryMessage struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	ImageID      string `json:"image_id,omitempty"`
	TurnID       string `json:"turn_id,omitempty"`
	IsCompressed bool   `json:"is_compressed,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type HistoryResponse struct {
	SessionKey string           `json:"session_key"`
	Messages   []HistoryMessage `json:"messages"`
}

type DeleteHistoryResponse struct {
	Success bool `json:"success"`
}

// --- Scheduler ---

type TaskItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	CronExpr      string `json:"cron_expr"`
	Command       string `json:"command"`
	Enabled       bool   `json:"enabled"`
	LastRunAt     string `json:"last_run_at,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	RunCount      int    `json:"run_count"`
	NextRunAt     string `json:"next_run_at,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type CreateTaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CronExpr    string `json:"cron_expr"`
	Command     string `json:"command"`
	Enabled     bool   `json:"enabled"`
}

type UpdateTaskRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CronExpr    *string `json:"cron_expr"`
	Command     *string `json:"command"`
	Enabled     *bool   `json:"enabled"`
}

type ListTasksResponse struct {
	Tasks []TaskItem `json:"tasks"`
	Total int        `json:"total"`
}

type TaskResponse struct {
	Task TaskItem `json:"task"`
}

type SchedulerStateResponse struct {
	Running bool `json:"running"`
}

type RunLogItem struct {
	ID         int64  `json:"id"`
	TaskID     string `json:"task_id"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
	Status     string `json:"status"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type TaskHistoryResponse struct {
	Logs []RunLogItem `json:"logs"`
}

// --- Skills ---

type SkillItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      string `json:"author,omitempty"`
	Command     string `json:"command"`
	UseCount    int    `json:"use_count"`
	Body        string `json:"body,omitempty"`
	HTML        string `json:"html,omitempty"`
}

type ListSkillsResponse struct {
	Skills []SkillItem `json:"skills"`
	Total  int         `json:"total"`
}

type SkillResponse struct {
	Skill SkillItem `json:"skill"`
}

type ExecuteSkillRequest struct {
	Params map[string]string `json:"params"`
}

type ExecuteSkillResponse struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

type ReloadResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// --- Misc ---

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

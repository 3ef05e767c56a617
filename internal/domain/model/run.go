package model

// CheckStatus 表示一次核对任务（run）的运行状态。
type CheckStatus string

const (
	// CheckQueued 已创建记录、尚未开始执行。
	CheckQueued CheckStatus = "queued"
	// CheckRunning 正在遍历归档。
	CheckRunning CheckStatus = "running"
	// CheckCompleted 正常结束。
	CheckCompleted CheckStatus = "completed"
	// CheckFailed 因 run 级异常终止，部分结果仍然可查。
	CheckFailed CheckStatus = "failed"
	// CheckCancelled 被调用方取消；取消不是错误，已落库结果保留。
	CheckCancelled CheckStatus = "cancelled"
)

// Terminal 判断状态是否为终态。进入终态后 run 记录不再变更。
func (s CheckStatus) Terminal() bool {
	switch s {
	case CheckCompleted, CheckFailed, CheckCancelled:
		return true
	}
	return false
}

// RunRequest 定义一次核对任务的输入参数。
// 目标范围二选一：显式项目列表，或 EntireArchive=true 覆盖整个归档。
type RunRequest struct {
	Requester      string   `json:"requester,omitempty"`
	ProjectIDs     []string `json:"project_ids,omitempty"`
	EntireArchive  bool     `json:"entire_archive,omitempty"`
	MaxFiles       int64    `json:"max_files,omitempty"` // <=0 表示不限
	VerifyCatalogs bool     `json:"verify_catalogs,omitempty"`
}

// Run 表示一次核对任务记录（对应 runs 表）。
// 运行期间由进度跟踪器持有权威实时值，数据库里的行是周期性同步的投影。
type Run struct {
	RunID     string      `json:"run_id"`
	Requester string      `json:"requester"`
	Status    CheckStatus `json:"status"`

	EntireArchive  bool     `json:"entire_archive"`
	ProjectIDs     []string `json:"project_ids,omitempty"`
	MaxFiles       int64    `json:"max_files,omitempty"`
	VerifyCatalogs bool     `json:"verify_catalogs"`

	StartedAt   int64 `json:"started_at,omitempty"`   // Unix 秒；0 表示未开始
	CompletedAt int64 `json:"completed_at,omitempty"` // Unix 秒；0 表示未结束

	TotalProjects     int `json:"total_projects"`
	ProcessedProjects int `json:"processed_projects"`
	TotalSessions     int `json:"total_sessions"`
	ProcessedSessions int `json:"processed_sessions"`

	TotalFiles      int64 `json:"total_files"`
	ProcessedFiles  int64 `json:"processed_files"`
	FilesFound      int64 `json:"files_found"`
	FilesMissing    int64 `json:"files_missing"`
	FilesUnresolved int64 `json:"files_unresolved"`
	// FilesErrored 是独立的第四个计数器，保证
	// processed == found + missing + unresolved + errored 恒成立。
	FilesErrored int64 `json:"files_errored"`

	CurrentProject  string  `json:"current_project,omitempty"`
	CurrentSession  string  `json:"current_session,omitempty"`
	PercentComplete float64 `json:"percent_complete"`

	ErrorMessage string   `json:"error_message,omitempty"`
	Warnings     []string `json:"warnings,omitempty"` // 被跳过单元（项目/会话/资源）的说明

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// RunSummary 是面向调用方的汇总视图：run 计数器 + 结果表按状态统计。
type RunSummary struct {
	RunID           string               `json:"run_id"`
	Requester       string               `json:"requester"`
	Status          CheckStatus          `json:"status"`
	StartedAt       int64                `json:"started_at,omitempty"`
	CompletedAt     int64                `json:"completed_at,omitempty"`
	TotalFiles      int64                `json:"total_files"`
	ProcessedFiles  int64                `json:"processed_files"`
	FilesFound      int64                `json:"files_found"`
	FilesMissing    int64                `json:"files_missing"`
	FilesUnresolved int64                `json:"files_unresolved"`
	FilesErrored    int64                `json:"files_errored"`
	PercentComplete float64              `json:"percent_complete"`
	StatusCounts    map[FileStatus]int64 `json:"status_counts"`
}

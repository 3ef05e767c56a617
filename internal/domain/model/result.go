package model

// FileStatus 表示单个文件的核对结论。
type FileStatus string

const (
	// FileFound 解析出的路径在磁盘上存在。
	FileFound FileStatus = "found"
	// FileMissing 解析出了候选路径，但磁盘上不存在对应文件。
	FileMissing FileStatus = "missing"
	// FileUnresolved 逻辑引用无法映射出任何候选路径（与 missing 是不同分类）。
	FileUnresolved FileStatus = "unresolved"
	// FileError 检查过程中出现意外错误；错误被就地捕获，不会终止 run。
	FileError FileStatus = "error"
)

// Scope 表示资源的挂载层级：直接挂在会话上，还是挂在某个 scan / assessor 上。
type Scope string

const (
	ScopeSession  Scope = "session"
	ScopeScan     Scope = "scan"
	ScopeAssessor Scope = "assessor"
)

// ResourceRef 是资源挂载位置的带标签变体：
// Scope 决定 ScanID / AssessorID 哪个有效，避免靠类型断言分发。
type ResourceRef struct {
	Scope      Scope  `json:"scope"`
	ScanID     string `json:"scan_id,omitempty"`     // 仅 ScopeScan 时有效
	AssessorID string `json:"assessor_id,omitempty"` // 仅 ScopeAssessor 时有效
}

// FileCheckResult 是一条文件核对结果（对应 file_check_results 表）。
// 状态确定的瞬间创建，之后不可变；按批落库，从不更新。
type FileCheckResult struct {
	RunID      string     `json:"run_id"`
	Project    string     `json:"project"`
	Session    string     `json:"session"`
	Resource   string     `json:"resource"`
	Scope      Scope      `json:"scope"`
	ScanID     string     `json:"scan_id,omitempty"`
	AssessorID string     `json:"assessor_id,omitempty"`
	FileName   string     `json:"file_name"`
	FilePath   string     `json:"file_path,omitempty"` // unresolved 时为空
	Status     FileStatus `json:"status"`

	ErrorMessage string `json:"error_message,omitempty"`

	ExpectedSize *int64 `json:"expected_size,omitempty"` // 来自 catalog，可缺省
	ActualSize   *int64 `json:"actual_size,omitempty"`   // 来自磁盘，可缺省
	// SizeMatch 仅在开启 verify-catalogs 且两个大小都已知时写入；
	// 大小不一致不改变 found/missing 分类，只作为附加标记。
	SizeMatch *bool `json:"size_match,omitempty"`

	CheckedAt int64 `json:"checked_at"`
}

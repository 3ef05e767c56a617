package fscheck

import (
	"context"

	"archive-inspector/internal/domain/model"
)

// Source 抽象“期望文件从哪来”：可以是归档目录里的 catalog.xml，
// 也可以是外部导出的 YAML 清单。实现方负责枚举层级，引擎只管核对。
type Source interface {
	// ListProjects 返回归档内全部项目 ID（EntireArchive 模式使用）。
	ListProjects(ctx context.Context) ([]string, error)
	// ArchiveRoot 返回项目所在的归档根目录。
	ArchiveRoot(ctx context.Context, projectID string) (string, error)
	// ListSessions 返回项目下的会话列表。
	ListSessions(ctx context.Context, projectID string) ([]model.Session, error)
	// ListResources 按挂载层级返回会话下的资源列表。
	// scope=scan / assessor 时，返回项为每个 scan / assessor 下的资源，Ref 已填好。
	ListResources(ctx context.Context, projectID string, session model.Session, scope model.Scope) ([]model.Resource, error)
	// ListEntries 返回资源 catalog 中登记的期望文件。
	// resourceDir 是该资源在磁盘上的目录，供实现方定位 catalog 文件。
	ListEntries(ctx context.Context, projectID string, session model.Session, res model.Resource, resourceDir string) ([]model.CatalogEntry, error)
}

// Sink 是引擎需要的持久化能力子集，由 sqlite store 实现。
type Sink interface {
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	AppendResults(ctx context.Context, results []model.FileCheckResult) error
	CountResultsByStatus(ctx context.Context, runID string) (map[model.FileStatus]int64, error)
}

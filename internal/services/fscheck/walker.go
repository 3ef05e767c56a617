package fscheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"archive-inspector/internal/domain/model"
)

// 结果按批落库的批大小。批只是写入优化，不是一致性边界。
const resultBatchSize = 50

// walker 执行一次 run 的完整遍历。
// 单元（项目/会话/资源）级错误记为 warning 后跳过；
// 只有范围枚举失败和结果落库失败会升级为 run 级失败。
type walker struct {
	source  Source
	sink    Sink
	tracker *Tracker
	workers int

	runID string
	req   model.RunRequest
}

// errStopRun 不是错误，只是提前收尾的信号（取消或到达文件数上限）。
var errStopRun = errors.New("stop requested")

func (w *walker) run(ctx context.Context) error {
	projects, err := w.determineProjects(ctx)
	if err != nil {
		return fmt.Errorf("determine project scope: %w", err)
	}
	w.tracker.SetTotalProjects(w.runID, len(projects))

	for _, project := range projects {
		if err := w.checkStop(ctx); err != nil {
			return err
		}

		if err := w.walkProject(ctx, project); err != nil {
			return err
		}
		w.tracker.ProjectDone(w.runID)
		w.syncRun(ctx)
	}
	return nil
}

func (w *walker) determineProjects(ctx context.Context) ([]string, error) {
	if w.req.EntireArchive {
		return w.source.ListProjects(ctx)
	}
	return w.req.ProjectIDs, nil
}

func (w *walker) walkProject(ctx context.Context, project string) error {
	root, err := w.source.ArchiveRoot(ctx, project)
	if err != nil {
		w.warnSkip("project %s: %v", project, err)
		return nil
	}

	sessions, err := w.source.ListSessions(ctx, project)
	if err != nil {
		w.warnSkip("project %s: list sessions: %v", project, err)
		return nil
	}
	w.tracker.AddSessions(w.runID, len(sessions))

	for _, session := range sessions {
		if err := w.checkStop(ctx); err != nil {
			return err
		}
		w.tracker.SetCurrent(w.runID, project, session.Label)

		if err := w.walkSession(ctx, root, project, session); err != nil {
			return err
		}
		w.tracker.SessionDone(w.runID)
	}
	return nil
}

// walkSession 并发核对一个会话下的全部资源。
// errgroup 既做并发上限，也做会话屏障：g.Wait() 返回前不进下一个会话，
// 保证同一时刻最多只有一个会话的检查在飞。
func (w *walker) walkSession(ctx context.Context, root, project string, session model.Session) error {
	var resources []model.Resource
	for _, scope := range []model.Scope{model.ScopeSession, model.ScopeScan, model.ScopeAssessor} {
		rs, err := w.source.ListResources(ctx, project, session, scope)
		if err != nil {
			w.warnSkip("session %s/%s: list %s resources: %v", project, session.Label, scope, err)
			continue
		}
		resources = append(resources, rs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for _, res := range resources {
		if !res.CatalogBacked {
			// 无 catalog 的资源没有期望文件清单，贡献零个文件，不算错误。
			continue
		}
		res := res
		g.Go(func() error {
			return w.checkResource(gctx, root, project, session, res)
		})
	}
	return g.Wait()
}

// checkResource 核对单个资源下的全部期望文件，按批落库。
// 落库失败向上传播并使整个 run 失败；其余错误与单文件异常就地消化。
func (w *walker) checkResource(ctx context.Context, root, project string, session model.Session, res model.Resource) error {
	resourceDir, err := ResourceDir(Location{
		ArchiveRoot: root,
		Project:     project,
		Session:     session.Label,
		Resource:    res.Label,
		Ref:         res.Ref,
	})
	if err != nil {
		w.warnSkip("resource %s/%s/%s: %v", project, session.Label, res.Label, err)
		return nil
	}

	entries, err := w.source.ListEntries(ctx, project, session, res, resourceDir)
	if err != nil {
		w.warnSkip("resource %s/%s/%s: list entries: %v", project, session.Label, res.Label, err)
		return nil
	}

	// 落库用脱离取消的 context：提前收尾（取消/上限）到达时，
	// 已计数文件的结果仍然必须落库，否则 processed_files 会多于可查行数。
	flushCtx := context.WithoutCancel(ctx)
	batch := make([]model.FileCheckResult, 0, resultBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.sink.AppendResults(flushCtx, batch); err != nil {
			return fmt.Errorf("flush results %s/%s/%s: %w", project, session.Label, res.Label, err)
		}
		batch = batch[:0]
		return nil
	}

	for _, entry := range entries {
		if err := w.checkStop(ctx); err != nil {
			if flushErr := flush(); flushErr != nil {
				return flushErr
			}
			return err
		}
		// 占位失败说明已到文件数上限，收尾但不算失败。
		if !w.tracker.ReserveFile(w.runID, w.req.MaxFiles) {
			if err := flush(); err != nil {
				return err
			}
			return errStopRun
		}

		path, ok := Resolve(entry.URI, resourceDir)
		insp := Inspect(path, ok, entry.ExpectedSize, w.req.VerifyCatalogs)
		w.tracker.FileChecked(w.runID, insp.Status)

		batch = append(batch, model.FileCheckResult{
			RunID:        w.runID,
			Project:      project,
			Session:      session.Label,
			Resource:     res.Label,
			Scope:        res.Ref.Scope,
			ScanID:       res.Ref.ScanID,
			AssessorID:   res.Ref.AssessorID,
			FileName:     entry.Name,
			FilePath:     insp.Path,
			Status:       insp.Status,
			ErrorMessage: insp.ErrorMessage,
			ExpectedSize: entry.ExpectedSize,
			ActualSize:   insp.ActualSize,
			SizeMatch:    insp.SizeMatch,
			CheckedAt:    time.Now().Unix(),
		})
		if len(batch) >= resultBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// checkStop 在遍历边界检查取消与上下文。
func (w *walker) checkStop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.tracker.CancelRequested(w.runID) {
		return errStopRun
	}
	return nil
}

func (w *walker) warnSkip(format string, args ...any) {
	w.tracker.AddWarning(w.runID, fmt.Sprintf(format+", skipped", args...))
}

// syncRun 把跟踪器快照投影到数据库。
// 投影只是给外部查询兜底，失败不影响运行，终态由引擎统一落库。
func (w *walker) syncRun(ctx context.Context) {
	if run, ok := w.tracker.Snapshot(w.runID); ok {
		_ = w.sink.UpdateRun(ctx, run)
	}
}

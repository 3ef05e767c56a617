package fscheck

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"archive-inspector/internal/domain/model"
)

var (
	// ErrEmptyScope 范围非法：既没给项目列表，也没开整库模式。
	ErrEmptyScope = errors.New("empty scope: project_ids or entire_archive required")
	// ErrRunNotFound run 在跟踪器和数据库里都不存在。
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished run 已进入终态，取消请求无效。
	ErrRunFinished = errors.New("run already finished")
)

// Options 控制引擎行为。
type Options struct {
	// Workers 单会话内的并发检查数，<=0 时取 CPU 核数。
	Workers int
}

// Engine 管理核对任务的生命周期：创建、后台执行、查询、取消。
// 每个 run 一个 goroutine，同一引擎可并行跑多个 run。
type Engine struct {
	store   Sink
	source  Source
	tracker *Tracker
	workers int

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

func NewEngine(store Sink, source Source, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     store,
		source:    source,
		tracker:   NewTracker(),
		workers:   workers,
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// StartRun 校验范围、落库 queued 记录后异步启动遍历，立即返回 run_id。
func (e *Engine) StartRun(ctx context.Context, req model.RunRequest) (string, error) {
	if !req.EntireArchive && len(req.ProjectIDs) == 0 {
		return "", ErrEmptyScope
	}

	runID := uuid.NewString()
	now := time.Now().Unix()
	run := model.Run{
		RunID:          runID,
		Requester:      req.Requester,
		Status:         model.CheckQueued,
		EntireArchive:  req.EntireArchive,
		ProjectIDs:     req.ProjectIDs,
		MaxFiles:       req.MaxFiles,
		VerifyCatalogs: req.VerifyCatalogs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	e.tracker.Register(run)

	e.wg.Add(1)
	go e.execute(runID, req)

	return runID, nil
}

// execute 在后台跑完一个 run 并落终态。
// panic 被就地捕获并转成 failed，绝不带崩宿主进程。
func (e *Engine) execute(runID string, req model.RunRequest) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.finish(runID, model.CheckFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	e.tracker.MarkRunning(runID)
	if run, ok := e.tracker.Snapshot(runID); ok {
		_ = e.store.UpdateRun(e.baseCtx, run)
	}

	w := &walker{
		source:  e.source,
		sink:    e.store,
		tracker: e.tracker,
		workers: e.workers,
		runID:   runID,
		req:     req,
	}
	err := w.run(e.baseCtx)

	switch {
	case e.tracker.CancelRequested(runID),
		errors.Is(err, context.Canceled):
		e.finish(runID, model.CheckCancelled, "")
	case errors.Is(err, errStopRun):
		// 文件数上限触发的提前收尾是正常结束。
		e.finish(runID, model.CheckCompleted, "")
	case err != nil:
		e.finish(runID, model.CheckFailed, err.Error())
	default:
		e.finish(runID, model.CheckCompleted, "")
	}
}

// finish 执行唯一一次终态迁移并把终态投影进数据库。
func (e *Engine) finish(runID string, status model.CheckStatus, errMsg string) {
	run, ok := e.tracker.Complete(runID, status, errMsg)
	if !ok {
		return
	}
	// 终态落库用独立 context：run 的收尾不应被宿主 ctx 取消打断。
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = e.store.UpdateRun(ctx, run)
}

// Cancel 请求取消一个 run。
// 已终态返回 ErrRunFinished，完全不存在返回 ErrRunNotFound。
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	if e.tracker.RequestCancel(runID) {
		return nil
	}
	if run, ok := e.tracker.Snapshot(runID); ok && run.Status.Terminal() {
		return ErrRunFinished
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return ErrRunNotFound
	}
	if run.Status.Terminal() {
		return ErrRunFinished
	}
	// 行存在但不在跟踪器里：多半是上次进程遗留的孤儿 run，无从取消。
	return ErrRunNotFound
}

// RunStatus 返回 run 的当前状态。
// 优先用跟踪器实时快照，内存淘汰后回退数据库；都没有返回 ErrRunNotFound。
func (e *Engine) RunStatus(ctx context.Context, runID string) (*model.Run, error) {
	if run, ok := e.tracker.Snapshot(runID); ok {
		return &run, nil
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// ListActive 返回跟踪器中全部非终态 run 的快照。
func (e *Engine) ListActive() []model.Run {
	e.tracker.mu.Lock()
	defer e.tracker.mu.Unlock()
	out := make([]model.Run, 0, len(e.tracker.active))
	for _, tr := range e.tracker.active {
		out = append(out, copyRun(tr.run))
	}
	return out
}

// Summary 返回 run 的汇总视图：计数器快照 + 结果表按状态统计。
func (e *Engine) Summary(ctx context.Context, runID string) (*model.RunSummary, error) {
	run, err := e.RunStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts, err := e.store.CountResultsByStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &model.RunSummary{
		RunID:           run.RunID,
		Requester:       run.Requester,
		Status:          run.Status,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		TotalFiles:      run.TotalFiles,
		ProcessedFiles:  run.ProcessedFiles,
		FilesFound:      run.FilesFound,
		FilesMissing:    run.FilesMissing,
		FilesUnresolved: run.FilesUnresolved,
		FilesErrored:    run.FilesErrored,
		PercentComplete: run.PercentComplete,
		StatusCounts:    counts,
	}, nil
}

// Shutdown 取消全部在飞 run 并等待后台 goroutine 退出。
// ctx 到期时放弃等待返回其错误。
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancelAll()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

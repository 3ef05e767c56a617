package fscheck

import (
	"sync"
	"time"

	"archive-inspector/internal/domain/model"
)

// 终态 run 在内存中最多保留的条数，超出后按完成顺序淘汰。
// 淘汰只影响内存快照，数据库里的行不受影响。
const maxDoneHistory = 100

// Tracker 持有运行中 run 的权威实时计数。
// 所有读写都在同一把锁下进行，对外只交出深拷贝快照。
type Tracker struct {
	mu        sync.Mutex
	active    map[string]*trackedRun
	done      map[string]model.Run
	doneOrder []string
}

type trackedRun struct {
	run             model.Run
	cancelRequested bool
}

func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]*trackedRun),
		done:   make(map[string]model.Run),
	}
}

// Register 把一条新 run 纳入跟踪。
func (t *Tracker) Register(run model.Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[run.RunID] = &trackedRun{run: run}
}

// MarkRunning 标记 run 开始执行并记录起始时间。
func (t *Tracker) MarkRunning(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.Status = model.CheckRunning
		tr.run.StartedAt = time.Now().Unix()
	}
}

// SetTotalProjects 在范围确定后写入项目总数。
func (t *Tracker) SetTotalProjects(runID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.TotalProjects = n
	}
}

// SetCurrent 更新“当前正在处理”的项目与会话。
func (t *Tracker) SetCurrent(runID, project, session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.CurrentProject = project
		tr.run.CurrentSession = session
	}
}

// AddSessions 把发现的会话数累加到总数。
func (t *Tracker) AddSessions(runID string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.TotalSessions += n
	}
}

// SessionDone 记录一个会话处理完毕。
func (t *Tracker) SessionDone(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.ProcessedSessions++
	}
}

// ProjectDone 记录一个项目处理完毕并重算百分比。
// 百分比按项目粒度推进，运行期间封顶 99，只有终态才写 100。
func (t *Tracker) ProjectDone(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return
	}
	tr.run.ProcessedProjects++
	if tr.run.TotalProjects > 0 {
		pct := float64(tr.run.ProcessedProjects) * 100 / float64(tr.run.TotalProjects)
		if pct > 99 {
			pct = 99
		}
		// 只增不减，避免并发推进时进度条回跳。
		if pct > tr.run.PercentComplete {
			tr.run.PercentComplete = pct
		}
	}
}

// ReserveFile 在文件数上限内为一次检查占位。
// 占位成功才允许检查，保证 processed_files 不会越过 max 上限。
// max<=0 表示不限。
func (t *Tracker) ReserveFile(runID string, max int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return false
	}
	if max > 0 && tr.run.TotalFiles >= max {
		return false
	}
	tr.run.TotalFiles++
	return true
}

// FileChecked 登记一次已完成的文件检查及其分类结果。
func (t *Tracker) FileChecked(runID string, status model.FileStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return
	}
	tr.run.ProcessedFiles++
	switch status {
	case model.FileFound:
		tr.run.FilesFound++
	case model.FileMissing:
		tr.run.FilesMissing++
	case model.FileUnresolved:
		tr.run.FilesUnresolved++
	case model.FileError:
		tr.run.FilesErrored++
	}
}

// AddWarning 追加一条“跳过说明”，用于项目/会话/资源级的访问失败。
func (t *Tracker) AddWarning(runID, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		tr.run.Warnings = append(tr.run.Warnings, msg)
	}
}

// RequestCancel 对运行中的 run 置取消标记。
// run 不在活跃表里（不存在或已终态）时返回 false。
func (t *Tracker) RequestCancel(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return false
	}
	tr.cancelRequested = true
	return true
}

// CancelRequested 查询取消标记。遍历循环在边界处轮询该标记。
func (t *Tracker) CancelRequested(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return false
	}
	return tr.cancelRequested
}

// Complete 执行唯一一次终态迁移：从活跃表移入历史表并返回终态快照。
// run 不在活跃表时返回 ok=false（可能已被 Complete 过）。
func (t *Tracker) Complete(runID string, status model.CheckStatus, errMsg string) (model.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.active[runID]
	if !ok {
		return model.Run{}, false
	}
	delete(t.active, runID)

	tr.run.Status = status
	tr.run.CompletedAt = time.Now().Unix()
	tr.run.ErrorMessage = errMsg
	tr.run.CurrentProject = ""
	tr.run.CurrentSession = ""
	// 百分比恰在终态时为 100，取消/失败也不例外：进度条收束到确定状态。
	tr.run.PercentComplete = 100

	t.done[runID] = copyRun(tr.run)
	t.doneOrder = append(t.doneOrder, runID)
	for len(t.doneOrder) > maxDoneHistory {
		evict := t.doneOrder[0]
		t.doneOrder = t.doneOrder[1:]
		delete(t.done, evict)
	}

	return copyRun(tr.run), true
}

// Snapshot 返回 run 的当前快照。活跃与历史表都找不到时返回 ok=false。
func (t *Tracker) Snapshot(runID string) (model.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.active[runID]; ok {
		return copyRun(tr.run), true
	}
	if run, ok := t.done[runID]; ok {
		return copyRun(run), true
	}
	return model.Run{}, false
}

// copyRun 深拷贝 slice 字段，避免解锁后调用方与跟踪器共享底层数组。
func copyRun(run model.Run) model.Run {
	cpy := run
	if len(run.Warnings) > 0 {
		cpy.Warnings = make([]string, len(run.Warnings))
		copy(cpy.Warnings, run.Warnings)
	}
	if len(run.ProjectIDs) > 0 {
		cpy.ProjectIDs = make([]string, len(run.ProjectIDs))
		copy(cpy.ProjectIDs, run.ProjectIDs)
	}
	return cpy
}

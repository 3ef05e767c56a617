package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/platform/id"
)

// Store 封装与 SQLite 的读写逻辑。
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRun 写入一条新的 run 记录（状态应为 queued）。
func (s *Store) CreateRun(ctx context.Context, run model.Run) error {
	now := time.Now().Unix()
	if run.CreatedAt == 0 {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs(
			run_id, requester, status, entire_archive, project_ids, max_files, verify_catalogs,
			started_at, completed_at,
			total_projects, processed_projects, total_sessions, processed_sessions,
			total_files, processed_files, files_found, files_missing, files_unresolved, files_errored,
			current_project, current_session, percent_complete,
			error_message, warnings_json, created_at, updated_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Requester,
		string(run.Status),
		boolToInt(run.EntireArchive),
		strings.Join(run.ProjectIDs, ","),
		run.MaxFiles,
		boolToInt(run.VerifyCatalogs),
		run.StartedAt,
		run.CompletedAt,
		run.TotalProjects,
		run.ProcessedProjects,
		run.TotalSessions,
		run.ProcessedSessions,
		run.TotalFiles,
		run.ProcessedFiles,
		run.FilesFound,
		run.FilesMissing,
		run.FilesUnresolved,
		run.FilesErrored,
		run.CurrentProject,
		run.CurrentSession,
		run.PercentComplete,
		run.ErrorMessage,
		warningsJSON(run.Warnings),
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun 用跟踪器快照整体覆盖 run 行。
// 运行期间跟踪器是权威，这里只做投影，不做字段级合并。
func (s *Store) UpdateRun(ctx context.Context, run model.Run) error {
	run.UpdatedAt = time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?,
			started_at = ?,
			completed_at = ?,
			total_projects = ?,
			processed_projects = ?,
			total_sessions = ?,
			processed_sessions = ?,
			total_files = ?,
			processed_files = ?,
			files_found = ?,
			files_missing = ?,
			files_unresolved = ?,
			files_errored = ?,
			current_project = ?,
			current_session = ?,
			percent_complete = ?,
			error_message = ?,
			warnings_json = ?,
			updated_at = ?
		WHERE run_id = ?
	`,
		string(run.Status),
		run.StartedAt,
		run.CompletedAt,
		run.TotalProjects,
		run.ProcessedProjects,
		run.TotalSessions,
		run.ProcessedSessions,
		run.TotalFiles,
		run.ProcessedFiles,
		run.FilesFound,
		run.FilesMissing,
		run.FilesUnresolved,
		run.FilesErrored,
		run.CurrentProject,
		run.CurrentSession,
		run.PercentComplete,
		run.ErrorMessage,
		warningsJSON(run.Warnings),
		run.UpdatedAt,
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun 按 run_id 查询；不存在时返回 (nil, nil)。
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			run_id, requester, status, entire_archive, project_ids, max_files, verify_catalogs,
			started_at, completed_at,
			total_projects, processed_projects, total_sessions, processed_sessions,
			total_files, processed_files, files_found, files_missing, files_unresolved, files_errored,
			current_project, current_session, percent_complete,
			error_message, warnings_json, created_at, updated_at
		FROM runs
		WHERE run_id = ?
		LIMIT 1
	`, runID)

	run, err := scanRun(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns 返回 run 列表，按创建时间倒序。
// requester 非空时按发起人过滤；activeOnly 只保留非终态的 run。
func (s *Store) ListRuns(ctx context.Context, requester string, activeOnly bool, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT
			run_id, requester, status, entire_archive, project_ids, max_files, verify_catalogs,
			started_at, completed_at,
			total_projects, processed_projects, total_sessions, processed_sessions,
			total_files, processed_files, files_found, files_missing, files_unresolved, files_errored,
			current_project, current_session, percent_complete,
			error_message, warnings_json, created_at, updated_at
		FROM runs
	`
	var conds []string
	var args []any
	if requester != "" {
		conds = append(conds, "requester = ?")
		args = append(args, requester)
	}
	if activeOnly {
		conds = append(conds, "status IN ('queued', 'running')")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// AppendResults 批量写入结果行，使用事务保证整批原子。
// 结果行不可变，从不 UPDATE。
func (s *Store) AppendResults(ctx context.Context, results []model.FileCheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx append results: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_check_results(
			run_id, project, session, resource, scope, scan_id, assessor_id,
			file_name, file_path, status, error_message,
			expected_size, actual_size, size_match, checked_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert results: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err = stmt.ExecContext(ctx,
			r.RunID,
			r.Project,
			r.Session,
			r.Resource,
			string(r.Scope),
			r.ScanID,
			r.AssessorID,
			r.FileName,
			r.FilePath,
			string(r.Status),
			r.ErrorMessage,
			nullableInt64(r.ExpectedSize),
			nullableInt64(r.ActualSize),
			nullableBool(r.SizeMatch),
			r.CheckedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result %s/%s: %w", r.RunID, r.FileName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append results: %w", err)
	}
	return nil
}

// ListResults 分页查询某个 run 的结果，按插入顺序（id 升序）返回。
// status 非空时按状态过滤。size 上限 1000。
func (s *Store) ListResults(ctx context.Context, runID string, status model.FileStatus, page, size int) ([]model.FileCheckResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	if size > 1000 {
		size = 1000
	}
	offset := (page - 1) * size

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT
				run_id, project, session, resource, scope, scan_id, assessor_id,
				file_name, file_path, status, error_message,
				expected_size, actual_size, size_match, checked_at
			FROM file_check_results
			WHERE run_id = ?
			ORDER BY id ASC
			LIMIT ? OFFSET ?
		`, runID, size, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT
				run_id, project, session, resource, scope, scan_id, assessor_id,
				file_name, file_path, status, error_message,
				expected_size, actual_size, size_match, checked_at
			FROM file_check_results
			WHERE run_id = ? AND status = ?
			ORDER BY id ASC
			LIMIT ? OFFSET ?
		`, runID, string(status), size, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []model.FileCheckResult{}
	for rows.Next() {
		var item model.FileCheckResult
		var scope string
		var fileStatus string
		var expected, actual sql.NullInt64
		var sizeMatch sql.NullInt64
		if err := rows.Scan(
			&item.RunID,
			&item.Project,
			&item.Session,
			&item.Resource,
			&scope,
			&item.ScanID,
			&item.AssessorID,
			&item.FileName,
			&item.FilePath,
			&fileStatus,
			&item.ErrorMessage,
			&expected,
			&actual,
			&sizeMatch,
			&item.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		item.Scope = model.Scope(scope)
		item.Status = model.FileStatus(fileStatus)
		if expected.Valid {
			v := expected.Int64
			item.ExpectedSize = &v
		}
		if actual.Valid {
			v := actual.Int64
			item.ActualSize = &v
		}
		if sizeMatch.Valid {
			v := sizeMatch.Int64 == 1
			item.SizeMatch = &v
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// CountResults 返回某个 run 的结果总数（可按状态过滤）。
func (s *Store) CountResults(ctx context.Context, runID string, status model.FileStatus) (int64, error) {
	var (
		n   int64
		err error
	)
	if status == "" {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM file_check_results WHERE run_id = ?
		`, runID).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM file_check_results WHERE run_id = ? AND status = ?
		`, runID, string(status)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// CountResultsByStatus 返回某个 run 的结果按状态分组统计。
func (s *Store) CountResultsByStatus(ctx context.Context, runID string) (map[model.FileStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM file_check_results
		WHERE run_id = ?
		GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count results by status: %w", err)
	}
	defer rows.Close()

	out := map[model.FileStatus]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[model.FileStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}

// RegisterExport 登记一个导出产物（CSV / PDF），返回生成的 export_id。
func (s *Store) RegisterExport(ctx context.Context, runID, exportType, filePath, sha256, generatorVersion string) (string, error) {
	exportID := id.New("export")
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports(
			export_id, run_id, export_type, file_path, sha256, generated_at, generator_version, status
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, 'ready')
	`, exportID, runID, exportType, filePath, sha256, now, generatorVersion)
	if err != nil {
		return "", fmt.Errorf("insert export: %w", err)
	}
	return exportID, nil
}

// ListExports 返回某个 run 的导出产物索引，按生成时间倒序。
func (s *Store) ListExports(ctx context.Context, runID string) ([]model.ExportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT export_id, run_id, export_type, file_path, sha256, generated_at, generator_version, status
		FROM exports
		WHERE run_id = ?
		ORDER BY generated_at DESC, export_id DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	out := []model.ExportInfo{}
	for rows.Next() {
		var item model.ExportInfo
		if err := rows.Scan(
			&item.ExportID,
			&item.RunID,
			&item.ExportType,
			&item.FilePath,
			&item.SHA256,
			&item.GeneratedAt,
			&item.GeneratorVersion,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return out, nil
}

// scanRun 从一行记录还原 model.Run。通过函数参数兼容 Row/Rows 两种来源。
func scanRun(scan func(dest ...any) error) (*model.Run, error) {
	var run model.Run
	var status string
	var entireArchive, verifyCatalogs int
	var projectIDs string
	var warnings string

	if err := scan(
		&run.RunID,
		&run.Requester,
		&status,
		&entireArchive,
		&projectIDs,
		&run.MaxFiles,
		&verifyCatalogs,
		&run.StartedAt,
		&run.CompletedAt,
		&run.TotalProjects,
		&run.ProcessedProjects,
		&run.TotalSessions,
		&run.ProcessedSessions,
		&run.TotalFiles,
		&run.ProcessedFiles,
		&run.FilesFound,
		&run.FilesMissing,
		&run.FilesUnresolved,
		&run.FilesErrored,
		&run.CurrentProject,
		&run.CurrentSession,
		&run.PercentComplete,
		&run.ErrorMessage,
		&warnings,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	run.Status = model.CheckStatus(status)
	run.EntireArchive = entireArchive == 1
	run.VerifyCatalogs = verifyCatalogs == 1
	if projectIDs != "" {
		run.ProjectIDs = strings.Split(projectIDs, ",")
	}
	if warnings != "" && warnings != "[]" {
		if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return &run, nil
}

func warningsJSON(warnings []string) string {
	if len(warnings) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// SQLite 中没有布尔类型，统一转 0/1 存储。
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}

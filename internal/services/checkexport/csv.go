package checkexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/platform/hash"
)

// CSV 导出：把一个 run 的结果表整体导出为可交付的 CSV 文件。
// 结果按插入顺序分页流式读取，不会把整个结果集拉进内存。
const exportPageSize = 1000

const csvGeneratorVer = "checkexport-csv-0.1.0"

// 列顺序是对外契约的一部分，下游表格模板按列位取值，不要调整。
var csvHeader = []string{
	"Project", "Session", "Resource", "Scope", "Scan", "Assessor",
	"File", "Path", "Status", "Error", "Checked At",
}

// Options 定义一次 CSV 导出任务。
type Options struct {
	RunID string

	// Status 非空时只导出该状态的结果（如只要 missing 清单）。
	Status model.FileStatus

	// ExportDir 可选：显式指定导出目录；缺省写 DBPath 同级的 exports/。
	ExportDir string
	DBPath    string
}

// Result 是一次 CSV 导出的摘要输出。
type Result struct {
	ExportID    string `json:"export_id"`
	CSVPath     string `json:"csv_path"`
	CSVSHA256   string `json:"csv_sha256"`
	RowCount    int64  `json:"row_count"`
	GeneratedAt int64  `json:"generated_at"`
}

// WriteCSV 把结果流式写入 w，返回数据行数（不含表头）。
func WriteCSV(ctx context.Context, store *sqliteadapter.Store, runID string, status model.FileStatus, w io.Writer) (int64, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	var total int64
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := store.ListResults(ctx, runID, status, page, exportPageSize)
		if err != nil {
			return total, err
		}
		for _, r := range rows {
			if err := cw.Write(csvRow(r)); err != nil {
				return total, fmt.Errorf("write csv row: %w", err)
			}
			total++
		}
		if len(rows) < exportPageSize {
			break
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, fmt.Errorf("flush csv: %w", err)
	}
	return total, nil
}

func csvRow(r model.FileCheckResult) []string {
	return []string{
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
		fmtTime(r.CheckedAt),
	}
}

// ExportToFile 生成 CSV 文件并登记到 exports 表。
func ExportToFile(ctx context.Context, store *sqliteadapter.Store, opts Options) (*Result, error) {
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		exportDir = filepath.Join(filepath.Dir(opts.DBPath), "exports")
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir exports: %w", err)
	}

	now := time.Now().Unix()
	name := fmt.Sprintf("%s_results_%d.csv", runID, now)
	if opts.Status != "" {
		name = fmt.Sprintf("%s_%s_%d.csv", runID, opts.Status, now)
	}
	csvPath := filepath.Join(exportDir, name)

	f, err := os.Create(csvPath)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	rowCount, err := WriteCSV(ctx, store, runID, opts.Status, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	sum, _, err := hash.File(csvPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 csv: %w", err)
	}

	exportID, err := store.RegisterExport(ctx, runID, "csv", csvPath, sum, csvGeneratorVer)
	if err != nil {
		return nil, fmt.Errorf("register export: %w", err)
	}

	return &Result{
		ExportID:    exportID,
		CSVPath:     csvPath,
		CSVSHA256:   sum,
		RowCount:    rowCount,
		GeneratedAt: now,
	}, nil
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

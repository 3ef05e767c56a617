package exportverify

import (
	"context"
	"fmt"
	"os"
	"strings"

	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/platform/hash"
)

// FailureItem 表示一条导出产物校验失败的明细（用于 UI/CLI 展示）。
type FailureItem struct {
	ExportID   string `json:"export_id"`
	ExportType string `json:"export_type"`
	FilePath   string `json:"file_path"`

	// FileMissing 表示登记的产物文件在磁盘上已不存在。
	FileMissing bool `json:"file_missing"`

	// SHA256Mismatch 表示磁盘文件重算哈希与登记值不一致。
	SHA256Mismatch bool   `json:"sha256_mismatch"`
	ExpectedSHA256 string `json:"expected_sha256,omitempty"`
	ActualSHA256   string `json:"actual_sha256,omitempty"`

	Message string `json:"message,omitempty"`
}

// Result 是一次 run 的导出产物完整性校验结果。
type Result struct {
	OK bool `json:"ok"`

	RunID string `json:"run_id"`
	Total int    `json:"total"`

	Failed         int `json:"failed"`
	MissingFiles   int `json:"missing_files"`
	SHA256Failures int `json:"sha256_failures"`

	Failures []FailureItem `json:"failures,omitempty"`
}

// VerifyRunExports 对 exports 表登记的产物做强校验：
// 1) 文件仍然存在
// 2) 重算 SHA-256 并与登记值对比
//
// 哈希计算必须与导出落盘时的 hash.File 保持一致。
func VerifyRunExports(ctx context.Context, store *sqliteadapter.Store, runID string) (*Result, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	exports, err := store.ListExports(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}

	res := &Result{
		OK:       true,
		RunID:    runID,
		Total:    len(exports),
		Failures: []FailureItem{},
	}
	for _, exp := range exports {
		item, failed := verifyOne(exp)
		if failed {
			res.OK = false
			res.Failed++
			if item.FileMissing {
				res.MissingFiles++
			}
			if item.SHA256Mismatch {
				res.SHA256Failures++
			}
			res.Failures = append(res.Failures, item)
		}
	}
	return res, nil
}

func verifyOne(exp model.ExportInfo) (FailureItem, bool) {
	item := FailureItem{
		ExportID:   exp.ExportID,
		ExportType: exp.ExportType,
		FilePath:   exp.FilePath,
	}

	if _, err := os.Stat(exp.FilePath); err != nil {
		item.FileMissing = true
		item.Message = fmt.Sprintf("export file missing: %v", err)
		return item, true
	}

	actual, _, err := hash.File(exp.FilePath)
	if err != nil {
		item.SHA256Mismatch = true
		item.ExpectedSHA256 = exp.SHA256
		item.Message = fmt.Sprintf("hash export file: %v", err)
		return item, true
	}
	if !strings.EqualFold(actual, exp.SHA256) {
		item.SHA256Mismatch = true
		item.ExpectedSHA256 = exp.SHA256
		item.ActualSHA256 = actual
		item.Message = "sha256 mismatch"
		return item, true
	}
	return item, false
}

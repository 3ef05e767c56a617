package reportpdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/platform/hash"
)

// run 核对报告（PDF）
//
// 输出给归档管理员的纸面交付物：run 概要 + 状态统计 + 异常清单节选。
// PDF 属于二进制产物，生成后登记到 exports 表，下载走文件路径。

type Options struct {
	RunID string

	// ExportDir 可选：显式指定导出目录；缺省写 DBPath 同级的 exports/。
	ExportDir string
	DBPath    string
}

type Result struct {
	ExportID    string   `json:"export_id"`
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

const pdfGeneratorVer = "reportpdf-0.1.0"

// 异常清单（missing / unresolved / error）每类在 PDF 里最多列这么多行，
// 完整清单走 CSV 导出。
const maxListedResults = 50

// GenerateRunPDF 生成一个 run 的核对报告 PDF，并登记为 export_type=pdf。
func GenerateRunPDF(ctx context.Context, store *sqliteadapter.Store, opts Options) (*Result, error) {
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

	warnings := []string{}
	counts, err := store.CountResultsByStatus(ctx, runID)
	if err != nil {
		warnings = append(warnings, "count results failed: "+err.Error())
		counts = map[model.FileStatus]int64{}
	}

	listTop := func(status model.FileStatus) []model.FileCheckResult {
		rows, err := store.ListResults(ctx, runID, status, 1, maxListedResults)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("list %s results failed: %v", status, err))
			return nil
		}
		return rows
	}
	missing := listTop(model.FileMissing)
	unresolved := listTop(model.FileUnresolved)
	errored := listTop(model.FileError)

	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		exportDir = filepath.Join(filepath.Dir(opts.DBPath), "exports")
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir exports: %w", err)
	}

	now := time.Now().Unix()
	pdfPath := filepath.Join(exportDir, fmt.Sprintf("%s_report_%d.pdf", runID, now))

	pdf, utf8OK := buildPDF(*run, counts, missing, unresolved, errored, now)
	if !utf8OK {
		warnings = append(warnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}

	exportID, err := store.RegisterExport(ctx, runID, "pdf", pdfPath, sum, pdfGeneratorVer)
	if err != nil {
		return nil, fmt.Errorf("register export: %w", err)
	}

	return &Result{
		ExportID:    exportID,
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

func buildPDF(
	run model.Run,
	counts map[model.FileStatus]int64,
	missing, unresolved, errored []model.FileCheckResult,
	generatedAt int64,
) (*gofpdf.Fpdf, bool) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Archive Inspector - Filesystem Check Report", false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "Archive Inspector - Filesystem Check Report", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	scope := "entire archive"
	if !run.EntireArchive {
		scope = strings.Join(run.ProjectIDs, ", ")
	}

	sectionTitle(pdf, fontFamily, "1. Run Overview")
	kv(pdf, fontFamily, utf8OK, "Run ID", run.RunID)
	kv(pdf, fontFamily, utf8OK, "Requester", run.Requester)
	kv(pdf, fontFamily, utf8OK, "Status", string(run.Status))
	kv(pdf, fontFamily, utf8OK, "Scope", scope)
	kv(pdf, fontFamily, utf8OK, "Started At", fmtTime(run.StartedAt))
	kv(pdf, fontFamily, utf8OK, "Completed At", fmtTime(run.CompletedAt))
	kv(pdf, fontFamily, utf8OK, "Projects", fmt.Sprintf("%d / %d", run.ProcessedProjects, run.TotalProjects))
	kv(pdf, fontFamily, utf8OK, "Sessions", fmt.Sprintf("%d / %d", run.ProcessedSessions, run.TotalSessions))
	kv(pdf, fontFamily, utf8OK, "Files Checked", fmt.Sprintf("%d", run.ProcessedFiles))
	if run.MaxFiles > 0 {
		kv(pdf, fontFamily, utf8OK, "File Ceiling", fmt.Sprintf("%d", run.MaxFiles))
	}
	if strings.TrimSpace(run.ErrorMessage) != "" {
		kv(pdf, fontFamily, utf8OK, "Error", run.ErrorMessage)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "2. Result Summary")
	kv(pdf, fontFamily, utf8OK, "Found", fmt.Sprintf("%d", counts[model.FileFound]))
	kv(pdf, fontFamily, utf8OK, "Missing", fmt.Sprintf("%d", counts[model.FileMissing]))
	kv(pdf, fontFamily, utf8OK, "Unresolved", fmt.Sprintf("%d", counts[model.FileUnresolved]))
	kv(pdf, fontFamily, utf8OK, "Error", fmt.Sprintf("%d", counts[model.FileError]))
	pdf.Ln(2)

	if len(run.Warnings) > 0 {
		sectionTitle(pdf, fontFamily, "Warnings (Skipped Units)")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(120, 80, 0)
		for _, w := range run.Warnings {
			pdf.MultiCell(0, 4.5, "- "+safeText(w, utf8OK), "", "L", false)
		}
		pdf.Ln(2)
	}

	resultSection(pdf, fontFamily, utf8OK, "3. Missing Files (Top List)", missing, counts[model.FileMissing])
	resultSection(pdf, fontFamily, utf8OK, "4. Unresolved References (Top List)", unresolved, counts[model.FileUnresolved])
	resultSection(pdf, fontFamily, utf8OK, "5. Check Errors (Top List)", errored, counts[model.FileError])

	pdf.Ln(2)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "Note: Listed items are truncated. Use the CSV export for the complete result set.", "", "L", false)

	return pdf, utf8OK
}

func resultSection(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, title string, rows []model.FileCheckResult, total int64) {
	sectionTitle(pdf, fontFamily, title)
	if len(rows) == 0 {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 5, "(empty)", "", "L", false)
		pdf.Ln(2)
		return
	}
	for _, r := range rows {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("%s / %s / %s | %s",
			safeText(r.Project, utf8OK),
			safeText(r.Session, utf8OK),
			safeText(r.Resource, utf8OK),
			safeText(r.FileName, utf8OK),
		), "", "L", false)
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(40, 40, 40)
		if strings.TrimSpace(r.FilePath) != "" {
			pdf.MultiCell(0, 4.5, fmt.Sprintf("path: %s", safeText(r.FilePath, utf8OK)), "", "L", false)
		}
		if strings.TrimSpace(r.ErrorMessage) != "" {
			pdf.MultiCell(0, 4.5, fmt.Sprintf("error: %s", safeText(r.ErrorMessage, utf8OK)), "", "L", false)
		}
		pdf.Ln(1)
	}
	if total > int64(len(rows)) {
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 4.5, fmt.Sprintf("... and %d more", total-int64(len(rows))), "", "L", false)
	}
	pdf.Ln(2)
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

func safeText(s string, utf8OK bool) string {
	// gofpdf 的内置字体只对 ASCII/Latin 可靠；
	// 未加载 UTF-8 字体时把非 ASCII 字符替换为 '?'，保证 PDF 一定能生成。
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体（TrueType），以支持非 ASCII 文件名。
//
// 规则：
// 1) 设置了环境变量 ARCHIVE_INSPECTOR_PDF_FONT 时优先使用该文件路径。
// 2) 否则按常见系统字体路径探测（macOS/Windows/Linux）。
// 3) 加载失败则回退到核心字体（Helvetica），由 safeText() 兜底替换非 ASCII 字符。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv("ARCHIVE_INSPECTOR_PDF_FONT")); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/Supplemental/AppleGothic.ttf",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\msyh.ttc`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/noto/NotoSansCJK-Regular.ttc",
		)
	}

	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}

		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			// bold 失败不致命：清错后仍可用 regular。
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}

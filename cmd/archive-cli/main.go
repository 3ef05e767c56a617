package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"archive-inspector/internal/adapters/catalog"
	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/app"
	"archive-inspector/internal/domain/model"
	"archive-inspector/internal/services/checkexport"
	"archive-inspector/internal/services/exportverify"
	"archive-inspector/internal/services/fscheck"
	"archive-inspector/internal/services/reportpdf"
	"archive-inspector/internal/services/webapp"

	_ "modernc.org/sqlite"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "check":
		return runCheck(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "results":
		return runResults(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "exports":
		return runExports(ctx, args[1:])
	case "verify":
		return runVerify(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runMigrate 执行 SQLite 迁移，确保数据库结构完整。
func runMigrate(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("migrations applied successfully: db=%s\n", *dbPath)
	return nil
}

// runCheck 同步执行一次核对：创建 run，轮询进度直到终态。
// Ctrl+C 触发协作式取消，已落库的结果保留。
func runCheck(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	archiveRoot := fs.String("archive-root", cfg.ArchiveRoot, "archive root directory")
	manifestPath := fs.String("manifest", "", "yaml manifest path (overrides archive catalogs)")
	projects := fs.String("projects", "", "comma separated project ids")
	all := fs.Bool("all", false, "check the entire archive")
	maxFiles := fs.Int64("max-files", 0, "stop after checking this many files (<=0 means unlimited)")
	verifyCatalogs := fs.Bool("verify-catalogs", false, "compare catalog file sizes against disk")
	workers := fs.Int("workers", 0, "concurrent resource checks per session (<=0 means NumCPU)")
	requester := fs.String("requester", "cli", "requester id or name")
	asJSON := fs.Bool("json", false, "print final run record as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqliteadapter.NewStore(db)

	source, err := buildSource(*manifestPath, *archiveRoot)
	if err != nil {
		return err
	}
	engine := fscheck.NewEngine(store, source, fscheck.Options{Workers: *workers})

	var projectIDs []string
	for _, p := range strings.Split(*projects, ",") {
		if p = strings.TrimSpace(p); p != "" {
			projectIDs = append(projectIDs, p)
		}
	}

	runID, err := engine.StartRun(ctx, model.RunRequest{
		Requester:      *requester,
		ProjectIDs:     projectIDs,
		EntireArchive:  *all,
		MaxFiles:       *maxFiles,
		VerifyCatalogs: *verifyCatalogs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("check started: run_id=%s\n", runID)

	// 支持 Ctrl+C 协作式取消。
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil {
			_ = engine.Cancel(context.Background(), runID)
		}
	}()

	final, err := pollUntilTerminal(ctx, engine, runID)
	if err != nil {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = engine.Shutdown(shutdownCtx)

	if *asJSON {
		return printJSON(final)
	}

	fmt.Printf("check %s: run_id=%s\n", final.Status, final.RunID)
	fmt.Printf("projects=%d/%d sessions=%d/%d\n",
		final.ProcessedProjects, final.TotalProjects, final.ProcessedSessions, final.TotalSessions)
	fmt.Printf("files: processed=%d found=%d missing=%d unresolved=%d errored=%d\n",
		final.ProcessedFiles, final.FilesFound, final.FilesMissing, final.FilesUnresolved, final.FilesErrored)
	if final.ErrorMessage != "" {
		fmt.Printf("error=%s\n", final.ErrorMessage)
	}
	if len(final.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(final.Warnings, " | "))
	}
	if final.Status == model.CheckFailed {
		return fmt.Errorf("check failed: %s", final.ErrorMessage)
	}
	return nil
}

// pollUntilTerminal 每 200ms 读一次进度，打印变化的百分比，返回终态快照。
func pollUntilTerminal(ctx context.Context, engine *fscheck.Engine, runID string) (*model.Run, error) {
	lastPercent := -1.0
	for {
		run, err := engine.RunStatus(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.PercentComplete != lastPercent {
			lastPercent = run.PercentComplete
			fmt.Printf("progress: %.0f%% project=%s session=%s processed=%d\n",
				run.PercentComplete, run.CurrentProject, run.CurrentSession, run.ProcessedFiles)
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// runRuns 列出核对任务记录。
func runRuns(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	requester := fs.String("requester", "", "filter by requester")
	activeOnly := fs.Bool("active", false, "only queued/running runs")
	limit := fs.Int("limit", 50, "max rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	runs, err := store.ListRuns(ctx, strings.TrimSpace(*requester), *activeOnly, *limit)
	if err != nil {
		return err
	}
	return printJSON(runs)
}

// runResults 分页查询某次 run 的文件核对结果。
func runResults(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	status := fs.String("status", "", "optional status filter: found|missing|unresolved|error")
	page := fs.Int("page", 1, "page number, starting at 1")
	size := fs.Int("size", 100, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	results, err := store.ListResults(ctx, *runID, model.FileStatus(strings.TrimSpace(*status)), *page, *size)
	if err != nil {
		return err
	}
	return printJSON(results)
}

// runSummary 输出 run 计数器加按状态统计的汇总视图。
func runSummary(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	run, err := store.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", *runID)
	}
	counts, err := store.CountResultsByStatus(ctx, *runID)
	if err != nil {
		return err
	}

	return printJSON(model.RunSummary{
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
	})
}

// runExport 是导出命令路由：csv 明细 / pdf 报告。
func runExport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printExportUsage()
		return nil
	}
	switch args[0] {
	case "csv":
		return runExportCSV(ctx, args[1:])
	case "pdf":
		return runExportPDF(ctx, args[1:])
	default:
		printExportUsage()
		return fmt.Errorf("unknown export command: %s", args[0])
	}
}

func runExportCSV(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("export csv", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	status := fs.String("status", "", "optional status filter: found|missing|unresolved|error")
	outDir := fs.String("out-dir", "", "export output directory (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	res, err := checkexport.ExportToFile(ctx, store, checkexport.Options{
		RunID:     strings.TrimSpace(*runID),
		Status:    model.FileStatus(strings.TrimSpace(*status)),
		ExportDir: strings.TrimSpace(*outDir),
		DBPath:    *dbPath,
	})
	if err != nil {
		return err
	}

	fmt.Println("csv export completed")
	fmt.Printf("run_id=%s export_id=%s rows=%d\n", *runID, res.ExportID, res.RowCount)
	fmt.Printf("csv=%s\n", res.CSVPath)
	fmt.Printf("csv_sha256=%s\n", res.CSVSHA256)
	return nil
}

func runExportPDF(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("export pdf", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	outDir := fs.String("out-dir", "", "export output directory (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	res, err := reportpdf.GenerateRunPDF(ctx, store, reportpdf.Options{
		RunID:     strings.TrimSpace(*runID),
		ExportDir: strings.TrimSpace(*outDir),
		DBPath:    *dbPath,
	})
	if err != nil {
		return err
	}

	fmt.Println("pdf report completed")
	fmt.Printf("run_id=%s export_id=%s\n", *runID, res.ExportID)
	fmt.Printf("pdf=%s\n", res.PDFPath)
	fmt.Printf("pdf_sha256=%s\n", res.PDFSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// runExports 列出某次 run 已登记的导出产物。
func runExports(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("exports", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	exports, err := store.ListExports(ctx, strings.TrimSpace(*runID))
	if err != nil {
		return err
	}
	return printJSON(exports)
}

// runVerify 校验某次 run 登记的导出产物：文件存在且 SHA-256 未变。
func runVerify(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	runID := fs.String("run-id", "", "run id (required)")
	asJSON := fs.Bool("json", false, "print result as json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*runID) == "" {
		return fmt.Errorf("--run-id is required")
	}

	db, err := openDatabase(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewStore(db)
	res, err := exportverify.VerifyRunExports(ctx, store, strings.TrimSpace(*runID))
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(res)
	}

	fmt.Printf("verify run_id=%s total=%d failed=%d\n", res.RunID, res.Total, res.Failed)
	for _, f := range res.Failures {
		fmt.Printf("export_id=%s type=%s path=%s message=%s\n", f.ExportID, f.ExportType, f.FilePath, f.Message)
	}
	if !res.OK {
		return fmt.Errorf("export verification failed: %d of %d", res.Failed, res.Total)
	}
	fmt.Println("all exports verified")
	return nil
}

// runServe 启动 HTTP API 服务。
func runServe(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "yaml config file (optional)")
	dbPath := fs.String("db", "", "sqlite database path")
	archiveRoot := fs.String("archive-root", "", "archive root directory")
	manifestPath := fs.String("manifest", "", "yaml manifest path (overrides archive catalogs)")
	exportDir := fs.String("export-dir", "", "export output directory")
	listen := fs.String("listen", "", "listen address")
	workers := fs.Int("workers", 0, "concurrent resource checks per session (<=0 means NumCPU)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *configPath != "" {
		loaded, err := app.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// 命令行参数优先于配置文件。
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *archiveRoot != "" {
		cfg.ArchiveRoot = *archiveRoot
	}
	if *manifestPath != "" {
		cfg.ManifestPath = *manifestPath
	}
	if *exportDir != "" {
		cfg.ExportDir = *exportDir
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	// 支持 Ctrl+C 优雅退出。
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return webapp.Run(sigCtx, webapp.Options{
		DBPath:       cfg.DBPath,
		ArchiveRoot:  cfg.ArchiveRoot,
		ManifestPath: cfg.ManifestPath,
		ExportDir:    cfg.ExportDir,
		ListenAddr:   cfg.ListenAddr,
		Workers:      cfg.Workers,
	})
}

// openDatabase 打开 SQLite 并套用迁移，所有子命令共用。
func openDatabase(ctx context.Context, dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 内部单机工具优先稳定性：SQLite 用单连接 + busy_timeout 减少“database is locked”。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := sqliteadapter.NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, nil
}

// buildSource 按参数选择期望文件来源：YAML 清单优先，否则读归档 catalog.xml。
func buildSource(manifestPath, archiveRoot string) (fscheck.Source, error) {
	if strings.TrimSpace(manifestPath) != "" {
		src, err := catalog.LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	if strings.TrimSpace(archiveRoot) == "" {
		return nil, fmt.Errorf("--archive-root or --manifest is required")
	}
	return catalog.NewXMLSource(archiveRoot), nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archive-cli migrate [--db data/inspector.db]")
	fmt.Println("  archive-cli check --all | --projects P001,P002 [--db path] [--archive-root path] [--manifest path] [--max-files N] [--verify-catalogs] [--workers N] [--json]")
	fmt.Println("  archive-cli runs [--db path] [--requester name] [--active] [--limit N]")
	fmt.Println("  archive-cli results --run-id RUN_ID [--status missing] [--page 1] [--size 100]")
	fmt.Println("  archive-cli summary --run-id RUN_ID [--db path]")
	fmt.Println("  archive-cli export csv --run-id RUN_ID [--status missing] [--out-dir path]")
	fmt.Println("  archive-cli export pdf --run-id RUN_ID [--out-dir path]")
	fmt.Println("  archive-cli exports --run-id RUN_ID [--db path]")
	fmt.Println("  archive-cli verify --run-id RUN_ID [--db path] [--json]")
	fmt.Println("  archive-cli serve [--config path] [--listen 127.0.0.1:8787] [--db path] [--archive-root path] [--manifest path]")
}

func printExportUsage() {
	fmt.Println("Usage:")
	fmt.Println("  archive-cli export csv --run-id RUN_ID [--db path] [--status found|missing|unresolved|error] [--out-dir path]")
	fmt.Println("  archive-cli export pdf --run-id RUN_ID [--db path] [--out-dir path]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

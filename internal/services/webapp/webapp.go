package webapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"archive-inspector/internal/adapters/catalog"
	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/app"
	"archive-inspector/internal/services/fscheck"
)

// Options 定义核对服务的启动参数。
// ManifestPath 非空时从 YAML 清单取期望文件，否则直接读归档里的 catalog.xml。
type Options struct {
	DBPath       string
	ArchiveRoot  string
	ManifestPath string
	ExportDir    string

	ListenAddr string
	Workers    int
}

// Run 启动 HTTP API 服务：创建/查询/取消核对任务，读取结果与导出产物。
// ctx 取消时先停掉在飞 run，再优雅关闭 HTTP 服务。
func Run(ctx context.Context, opts Options) error {
	defaults := app.DefaultConfig()
	if opts.DBPath == "" {
		opts.DBPath = defaults.DBPath
	}
	if opts.ArchiveRoot == "" {
		opts.ArchiveRoot = defaults.ArchiveRoot
	}
	if opts.ExportDir == "" {
		opts.ExportDir = filepath.Join(filepath.Dir(opts.DBPath), "exports")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:8787"
	}

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(opts.ExportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	// 内部单机工具优先稳定性：SQLite 用单连接 + busy_timeout 减少“database is locked”。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	migrator := sqliteadapter.NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	store := sqliteadapter.NewStore(db)

	var source fscheck.Source
	if opts.ManifestPath != "" {
		source, err = catalog.LoadManifest(opts.ManifestPath)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
	} else {
		source = catalog.NewXMLSource(opts.ArchiveRoot)
	}

	engine := fscheck.NewEngine(store, source, fscheck.Options{Workers: opts.Workers})

	s := &Server{
		opts:   opts,
		db:     db,
		store:  store,
		engine: engine,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	httpServer := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = engine.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("archive inspector listening: http://%s\n", opts.ListenAddr)
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

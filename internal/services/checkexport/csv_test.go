package checkexport

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	sqliteadapter "archive-inspector/internal/adapters/store/sqlite"
	"archive-inspector/internal/domain/model"
)

func openTestStore(t *testing.T) (*sqliteadapter.Store, string) {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "inspector.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		t.Fatalf("set busy_timeout: %v", err)
	}
	if err := sqliteadapter.NewMigrator(db).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqliteadapter.NewStore(db), dbPath
}

func seedRun(t *testing.T, store *sqliteadapter.Store, runID string, n int) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateRun(ctx, model.Run{RunID: runID, Status: model.CheckCompleted, CreatedAt: 1}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	var batch []model.FileCheckResult
	for i := 0; i < n; i++ {
		status := model.FileFound
		if i%5 == 4 {
			status = model.FileMissing
		}
		batch = append(batch, model.FileCheckResult{
			RunID:    runID,
			Project:  "P001",
			Session:  "S001",
			Resource: "DICOM",
			Scope:    model.ScopeScan,
			ScanID:   "1",
			FileName: fmt.Sprintf("f%04d.dcm", i),
			FilePath: fmt.Sprintf("/archive/P001/arc001/S001/SCANS/1/DICOM/f%04d.dcm", i),
			Status:   status,
			CheckedAt: 1700000000,
		})
	}
	if err := store.AppendResults(ctx, batch); err != nil {
		t.Fatalf("append results: %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	store, _ := openTestStore(t)
	seedRun(t, store, "run-1", 10)

	var buf bytes.Buffer
	n, err := WriteCSV(context.Background(), store, "run-1", "", &buf)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if n != 10 {
		t.Fatalf("rows = %d, want 10", n)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reread csv: %v", err)
	}
	if len(records) != 11 {
		t.Fatalf("records = %d, want 11 (header + 10)", len(records))
	}

	header := records[0]
	want := []string{"Project", "Session", "Resource", "Scope", "Scan", "Assessor", "File", "Path", "Status", "Error", "Checked At"}
	for i := range want {
		if header[i] != want[i] {
			t.Fatalf("header[%d] = %s, want %s", i, header[i], want[i])
		}
	}

	if records[1][6] != "f0000.dcm" {
		t.Fatalf("first row file = %s", records[1][6])
	}
	if records[1][8] != "found" {
		t.Fatalf("first row status = %s", records[1][8])
	}
}

func TestWriteCSVStatusFilter(t *testing.T) {
	store, _ := openTestStore(t)
	seedRun(t, store, "run-1", 10)

	var buf bytes.Buffer
	n, err := WriteCSV(context.Background(), store, "run-1", model.FileMissing, &buf)
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

func TestExportToFile(t *testing.T) {
	store, dbPath := openTestStore(t)
	seedRun(t, store, "run-1", 7)

	res, err := ExportToFile(context.Background(), store, Options{RunID: "run-1", DBPath: dbPath})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.RowCount != 7 {
		t.Fatalf("row count = %d, want 7", res.RowCount)
	}
	if res.ExportID == "" || res.CSVSHA256 == "" {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(res.CSVPath); err != nil {
		t.Fatalf("csv file missing: %v", err)
	}

	exports, err := store.ListExports(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("list exports: %v", err)
	}
	if len(exports) != 1 || exports[0].ExportType != "csv" {
		t.Fatalf("exports = %+v", exports)
	}
}

func TestExportToFileUnknownRun(t *testing.T) {
	store, dbPath := openTestStore(t)
	if _, err := ExportToFile(context.Background(), store, Options{RunID: "ghost", DBPath: dbPath}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

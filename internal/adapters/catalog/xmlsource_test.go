package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archive-inspector/internal/domain/model"
)

const sampleCatalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<cat:Catalog xmlns:cat="http://nrg.wustl.edu/catalog" ID="DICOM">
  <cat:entries>
    <cat:entry name="1.dcm" URI="/archive/P001/arc001/S001/SCANS/2/DICOM/files/1.dcm" file_size="2048"/>
    <cat:entry name="2.dcm" URI="/archive/P001/arc001/S001/SCANS/2/DICOM/files/2.dcm"/>
    <cat:entry URI="/archive/P001/arc001/S001/SCANS/2/DICOM/files/3.dcm" file_size="bogus"/>
  </cat:entries>
</cat:Catalog>`

func TestParseCatalogXML(t *testing.T) {
	entries, err := ParseCatalogXML([]byte(sampleCatalogXML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}

	if entries[0].Name != "1.dcm" {
		t.Fatalf("name = %s", entries[0].Name)
	}
	if entries[0].ExpectedSize == nil || *entries[0].ExpectedSize != 2048 {
		t.Fatalf("expected_size = %v", entries[0].ExpectedSize)
	}
	if entries[1].ExpectedSize != nil {
		t.Fatal("entry without file_size should have nil size")
	}
	// name 缺省取 URI 末段；非法 file_size 跳过。
	if entries[2].Name != "3.dcm" {
		t.Fatalf("fallback name = %s", entries[2].Name)
	}
	if entries[2].ExpectedSize != nil {
		t.Fatal("bogus file_size should be skipped")
	}
}

func TestParseCatalogXMLInvalid(t *testing.T) {
	if _, err := ParseCatalogXML([]byte("not xml at all <")); err == nil {
		t.Fatal("expected parse error")
	}
}

// buildXMLArchive 铺一个最小归档：
// P001/arc001/S001 下有 scan 2 的 DICOM（带 catalog）、
// 会话级 NOTES（带 catalog）、assessor A1 的 STATS（不带 catalog）。
func buildXMLArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	sessionDir := filepath.Join(root, "P001", "arc001", "S001")

	scanDir := filepath.Join(sessionDir, "SCANS", "2", "DICOM")
	notesDir := filepath.Join(sessionDir, "RESOURCES", "NOTES")
	statsDir := filepath.Join(sessionDir, "ASSESSORS", "A1", "STATS")
	for _, d := range []string{scanDir, notesDir, statsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	if err := os.WriteFile(filepath.Join(scanDir, "scan_2_catalog.xml"), []byte(sampleCatalogXML), 0o644); err != nil {
		t.Fatalf("write scan catalog: %v", err)
	}
	if err := os.WriteFile(filepath.Join(notesDir, "catalog.xml"), []byte(sampleCatalogXML), 0o644); err != nil {
		t.Fatalf("write notes catalog: %v", err)
	}
	return root
}

func TestXMLSourceHierarchy(t *testing.T) {
	ctx := context.Background()
	src := NewXMLSource(buildXMLArchive(t))

	projects, err := src.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0] != "P001" {
		t.Fatalf("projects = %v", projects)
	}

	sessions, err := src.ListSessions(ctx, "P001")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Label != "S001" {
		t.Fatalf("sessions = %v", sessions)
	}

	scans, err := src.ListResources(ctx, "P001", sessions[0], model.ScopeScan)
	if err != nil {
		t.Fatalf("list scan resources: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("scan resources = %v", scans)
	}
	if scans[0].Label != "DICOM" || scans[0].Ref.ScanID != "2" || !scans[0].CatalogBacked {
		t.Fatalf("scan resource = %+v", scans[0])
	}

	sessRes, err := src.ListResources(ctx, "P001", sessions[0], model.ScopeSession)
	if err != nil {
		t.Fatalf("list session resources: %v", err)
	}
	if len(sessRes) != 1 || sessRes[0].Label != "NOTES" || !sessRes[0].CatalogBacked {
		t.Fatalf("session resources = %+v", sessRes)
	}

	assessors, err := src.ListResources(ctx, "P001", sessions[0], model.ScopeAssessor)
	if err != nil {
		t.Fatalf("list assessor resources: %v", err)
	}
	if len(assessors) != 1 {
		t.Fatalf("assessor resources = %v", assessors)
	}
	// STATS 目录没有 catalog 文件，标记 CatalogBacked=false，由遍历方跳过。
	if assessors[0].CatalogBacked {
		t.Fatal("stats resource should not be catalog backed")
	}
	if assessors[0].Ref.AssessorID != "A1" {
		t.Fatalf("assessor ref = %+v", assessors[0].Ref)
	}
}

func TestXMLSourceListEntries(t *testing.T) {
	ctx := context.Background()
	root := buildXMLArchive(t)
	src := NewXMLSource(root)

	resourceDir := filepath.Join(root, "P001", "arc001", "S001", "SCANS", "2", "DICOM")
	entries, err := src.ListEntries(ctx, "P001", model.Session{Label: "S001"},
		model.Resource{Label: "DICOM", Ref: model.ResourceRef{Scope: model.ScopeScan, ScanID: "2"}, CatalogBacked: true},
		resourceDir)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
}

func TestXMLSourceNoArcSubdir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	notesDir := filepath.Join(root, "P001", "S001", "RESOURCES", "NOTES")
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(notesDir, "catalog.xml"), []byte(sampleCatalogXML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	src := NewXMLSource(root)

	// 没有 arc 层的旧式归档：会话直接挂在项目目录下。
	sessions, err := src.ListSessions(ctx, "P001")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Label != "S001" {
		t.Fatalf("sessions = %v", sessions)
	}

	rs, err := src.ListResources(ctx, "P001", sessions[0], model.ScopeSession)
	if err != nil {
		t.Fatalf("list session resources: %v", err)
	}
	if len(rs) != 1 || rs[0].Label != "NOTES" || !rs[0].CatalogBacked {
		t.Fatalf("session resources = %+v", rs)
	}
}

func TestXMLSourceMissingScopeDirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "P001", "arc001", "S001"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := NewXMLSource(root)

	for _, scope := range []model.Scope{model.ScopeSession, model.ScopeScan, model.ScopeAssessor} {
		rs, err := src.ListResources(ctx, "P001", model.Session{Label: "S001"}, scope)
		if err != nil {
			t.Fatalf("scope %s: %v", scope, err)
		}
		if len(rs) != 0 {
			t.Fatalf("scope %s: resources = %v, want none", scope, rs)
		}
	}
}

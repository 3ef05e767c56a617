package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archive-inspector/internal/domain/model"
)

const sampleManifest = `
archive_root: /data/archive
projects:
  - id: P001
    sessions:
      - label: S001
        resources:
          - label: NOTES
            entries:
              - name: readme.txt
                uri: /data/archive/P001/arc001/S001/RESOURCES/NOTES/files/readme.txt
        scans:
          - id: "2"
            resources:
              - label: DICOM
                entries:
                  - name: 1.dcm
                    uri: /data/archive/P001/arc001/S001/SCANS/2/DICOM/files/1.dcm
                    size: 2048
                  - name: 2.dcm
                    uri: /data/archive/P001/arc001/S001/SCANS/2/DICOM/files/2.dcm
        assessors:
          - id: A1
            resources:
              - label: STATS
                entries:
                  - name: stats.csv
                    uri: /data/archive/P001/arc001/S001/ASSESSORS/A1/STATS/files/stats.csv
  - id: P002
    sessions: []
`

func TestParseManifest(t *testing.T) {
	ctx := context.Background()
	src, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	projects, err := src.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("projects = %v", projects)
	}

	root, err := src.ArchiveRoot(ctx, "P001")
	if err != nil {
		t.Fatalf("archive root: %v", err)
	}
	if root != "/data/archive" {
		t.Fatalf("root = %s", root)
	}

	sessions, err := src.ListSessions(ctx, "P001")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Label != "S001" {
		t.Fatalf("sessions = %v", sessions)
	}
}

func TestManifestResourcesAndEntries(t *testing.T) {
	ctx := context.Background()
	src, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	session := model.Session{Label: "S001"}

	scans, err := src.ListResources(ctx, "P001", session, model.ScopeScan)
	if err != nil {
		t.Fatalf("list scans: %v", err)
	}
	if len(scans) != 1 || scans[0].Ref.ScanID != "2" || !scans[0].CatalogBacked {
		t.Fatalf("scans = %+v", scans)
	}

	entries, err := src.ListEntries(ctx, "P001", session, scans[0], "")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ExpectedSize == nil || *entries[0].ExpectedSize != 2048 {
		t.Fatalf("expected_size = %v", entries[0].ExpectedSize)
	}
	if entries[1].ExpectedSize != nil {
		t.Fatal("size should be nil when omitted")
	}

	assessors, err := src.ListResources(ctx, "P001", session, model.ScopeAssessor)
	if err != nil {
		t.Fatalf("list assessors: %v", err)
	}
	if len(assessors) != 1 || assessors[0].Ref.AssessorID != "A1" {
		t.Fatalf("assessors = %+v", assessors)
	}

	sessRes, err := src.ListResources(ctx, "P001", session, model.ScopeSession)
	if err != nil {
		t.Fatalf("list session resources: %v", err)
	}
	if len(sessRes) != 1 || sessRes[0].Label != "NOTES" {
		t.Fatalf("session resources = %+v", sessRes)
	}
}

func TestManifestValidation(t *testing.T) {
	cases := map[string]string{
		"missing root":    "projects:\n  - id: P001\n",
		"empty projects":  "archive_root: /data\nprojects: []\n",
		"blank project":   "archive_root: /data\nprojects:\n  - id: \"\"\n",
		"duplicate id":    "archive_root: /data\nprojects:\n  - id: P001\n  - id: P001\n",
		"blank session":   "archive_root: /data\nprojects:\n  - id: P001\n    sessions:\n      - label: \"\"\n",
		"not yaml at all": "{{{{",
	}
	for name, raw := range cases {
		if _, err := ParseManifest([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadManifestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	src, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	projects, err := src.ListProjects(context.Background())
	if err != nil || len(projects) != 2 {
		t.Fatalf("projects = %v, %v", projects, err)
	}

	if _, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for absent file")
	}
}

func TestManifestUnknownProject(t *testing.T) {
	src, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := src.ArchiveRoot(context.Background(), "P999"); err == nil {
		t.Fatal("expected error for unknown project")
	}
	if _, err := src.ListSessions(context.Background(), "P999"); err == nil {
		t.Fatal("expected error for unknown project")
	}
}

package fscheck

import (
	"os"
	"path/filepath"
	"testing"

	"archive-inspector/internal/domain/model"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResourceDirLayout(t *testing.T) {
	root := t.TempDir()
	arcDir := filepath.Join(root, "P001", "arc001")
	if err := os.MkdirAll(arcDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cases := []struct {
		name string
		ref  model.ResourceRef
		want string
	}{
		{
			name: "scan",
			ref:  model.ResourceRef{Scope: model.ScopeScan, ScanID: "2"},
			want: filepath.Join(arcDir, "S001", "SCANS", "2", "DICOM"),
		},
		{
			name: "assessor",
			ref:  model.ResourceRef{Scope: model.ScopeAssessor, AssessorID: "A1"},
			want: filepath.Join(arcDir, "S001", "ASSESSORS", "A1", "DICOM"),
		},
		{
			name: "session",
			ref:  model.ResourceRef{Scope: model.ScopeSession},
			want: filepath.Join(arcDir, "S001", "RESOURCES", "DICOM"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResourceDir(Location{
				ArchiveRoot: root,
				Project:     "P001",
				Session:     "S001",
				Resource:    "DICOM",
				Ref:         tc.ref,
			})
			if err != nil {
				t.Fatalf("resource dir: %v", err)
			}
			if got != tc.want {
				t.Fatalf("dir = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResourceDirPicksFirstArcSubdir(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"arc002", "arc001", "cache"} {
		if err := os.MkdirAll(filepath.Join(root, "P001", d), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	got, err := ResourceDir(Location{
		ArchiveRoot: root,
		Project:     "P001",
		Session:     "S001",
		Resource:    "DICOM",
		Ref:         model.ResourceRef{Scope: model.ScopeSession},
	})
	if err != nil {
		t.Fatalf("resource dir: %v", err)
	}
	want := filepath.Join(root, "P001", "arc001", "S001", "RESOURCES", "DICOM")
	if got != want {
		t.Fatalf("dir = %s, want %s", got, want)
	}
}

func TestResourceDirNoArcSubdirFallsBackToProjectDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "P001", "cache"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := ResourceDir(Location{
		ArchiveRoot: root,
		Project:     "P001",
		Session:     "S001",
		Resource:    "DICOM",
		Ref:         model.ResourceRef{Scope: model.ScopeSession},
	})
	if err != nil {
		t.Fatalf("resource dir: %v", err)
	}
	// 没有 arc 层的旧式归档：会话直接挂在项目目录下。
	want := filepath.Join(root, "P001", "S001", "RESOURCES", "DICOM")
	if got != want {
		t.Fatalf("dir = %s, want %s", got, want)
	}
}

func TestResourceDirMissingProjectDir(t *testing.T) {
	root := t.TempDir()
	_, err := ResourceDir(Location{
		ArchiveRoot: root,
		Project:     "NOPE",
		Session:     "S001",
		Resource:    "DICOM",
		Ref:         model.ResourceRef{Scope: model.ScopeSession},
	})
	if err == nil {
		t.Fatal("expected error for missing project directory")
	}
}

func TestResolveAbsoluteExisting(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "scan.dcm")
	writeFile(t, target)

	got, ok := Resolve(target, "")
	if !ok || got != target {
		t.Fatalf("resolve = (%s, %v), want (%s, true)", got, ok, target)
	}
}

func TestResolveStrippedJoin(t *testing.T) {
	resourceDir := t.TempDir()
	writeFile(t, filepath.Join(resourceDir, "1.dcm"))

	got, ok := Resolve("/archive/P001/arc001/S001/SCANS/1/DICOM/files/1.dcm", resourceDir)
	if !ok {
		t.Fatal("expected resolved")
	}
	if got != filepath.Join(resourceDir, "1.dcm") {
		t.Fatalf("path = %s", got)
	}
}

func TestResolveStrippedJoinNested(t *testing.T) {
	resourceDir := t.TempDir()
	writeFile(t, filepath.Join(resourceDir, "sub", "1.dcm"))

	got, ok := Resolve("/files/sub/1.dcm", resourceDir)
	if !ok || got != filepath.Join(resourceDir, "sub", "1.dcm") {
		t.Fatalf("resolve = (%s, %v)", got, ok)
	}
}

func TestResolveUnmodifiedJoin(t *testing.T) {
	resourceDir := t.TempDir()
	writeFile(t, filepath.Join(resourceDir, "raw", "1.dcm"))

	// 无 /files/ 标记的相对引用，原样拼接命中。
	got, ok := Resolve("raw/1.dcm", resourceDir)
	if !ok || got != filepath.Join(resourceDir, "raw", "1.dcm") {
		t.Fatalf("resolve = (%s, %v)", got, ok)
	}
}

func TestResolveAbsentStillYieldsCandidate(t *testing.T) {
	resourceDir := t.TempDir()

	// 文件不存在，但引用可以映射出候选路径：交给检查器判 missing。
	got, ok := Resolve("/archive/P001/files/gone.dcm", resourceDir)
	if !ok {
		t.Fatal("expected candidate path for absent file")
	}
	if got != filepath.Join(resourceDir, "gone.dcm") {
		t.Fatalf("candidate = %s", got)
	}

	abs := filepath.Join(t.TempDir(), "nowhere", "gone.dcm")
	got, ok = Resolve(abs, "")
	if !ok || got != abs {
		t.Fatalf("absolute candidate = (%s, %v)", got, ok)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	if _, ok := Resolve("", t.TempDir()); ok {
		t.Fatal("empty uri should not resolve")
	}
	if _, ok := Resolve("   ", t.TempDir()); ok {
		t.Fatal("blank uri should not resolve")
	}
	// 相对引用且没有资源目录可拼：没有任何候选路径。
	if _, ok := Resolve("files/1.dcm", ""); ok {
		t.Fatal("relative uri without resource dir should not resolve")
	}
}

func TestStripFilesPrefix(t *testing.T) {
	cases := map[string]string{
		"/archive/P001/files/1.dcm": "1.dcm",
		"/files/a/b.dcm":            "a/b.dcm",
		"no/marker/here.dcm":        "no/marker/here.dcm",
		"/x/files/y/files/z.dcm":    "y/files/z.dcm",
	}
	for in, want := range cases {
		if got := stripFilesPrefix(in); got != want {
			t.Fatalf("stripFilesPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

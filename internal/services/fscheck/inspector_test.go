package fscheck

import (
	"os"
	"path/filepath"
	"testing"

	"archive-inspector/internal/domain/model"
)

func TestInspectFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.dcm")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	insp := Inspect(path, true, nil, false)
	if insp.Status != model.FileFound {
		t.Fatalf("status = %s, want found", insp.Status)
	}
	if insp.ActualSize == nil || *insp.ActualSize != 5 {
		t.Fatalf("actual_size = %v", insp.ActualSize)
	}
	if insp.SizeMatch != nil {
		t.Fatal("size_match should be nil without verify")
	}
}

func TestInspectSizeVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.dcm")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	expected := int64(5)
	insp := Inspect(path, true, &expected, true)
	if insp.SizeMatch == nil || !*insp.SizeMatch {
		t.Fatalf("size_match = %v, want true", insp.SizeMatch)
	}

	wrong := int64(6)
	insp = Inspect(path, true, &wrong, true)
	if insp.SizeMatch == nil || *insp.SizeMatch {
		t.Fatalf("size_match = %v, want false", insp.SizeMatch)
	}
	// 大小不一致不改变分类。
	if insp.Status != model.FileFound {
		t.Fatalf("status = %s, want found", insp.Status)
	}
}

func TestInspectMissing(t *testing.T) {
	insp := Inspect(filepath.Join(t.TempDir(), "absent.dcm"), true, nil, false)
	if insp.Status != model.FileMissing {
		t.Fatalf("status = %s, want missing", insp.Status)
	}
	if insp.ErrorMessage != "" {
		t.Fatalf("error message = %q, want empty", insp.ErrorMessage)
	}
}

func TestInspectUnresolved(t *testing.T) {
	insp := Inspect("", false, nil, false)
	if insp.Status != model.FileUnresolved {
		t.Fatalf("status = %s, want unresolved", insp.Status)
	}
}

func TestInspectStatError(t *testing.T) {
	// 把普通文件当目录往下走，stat 会报 ENOTDIR 而不是 ENOENT。
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	insp := Inspect(filepath.Join(file, "child.dcm"), true, nil, false)
	// 不同平台可能归类为 not-exist 或报错，两者都不该是 found。
	if insp.Status == model.FileFound {
		t.Fatalf("status = %s, want missing or error", insp.Status)
	}
}

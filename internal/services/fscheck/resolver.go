package fscheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"archive-inspector/internal/domain/model"
)

// Location 描述一个资源在归档层级中的位置，用于推导它的磁盘目录。
type Location struct {
	ArchiveRoot string
	Project     string
	Session     string
	Resource    string
	Ref         model.ResourceRef
}

// ResourceDir 按归档目录约定拼出资源目录：
//
//	{root}/{project}/{arc 子目录}/{session}/{SCANS/<id> | ASSESSORS/<id> | RESOURCES}/{label}
//
// arc 子目录指项目目录下首个以 "arc" 开头的子目录（按目录项排序取第一个）。
// 项目目录下没有 arc 子目录时省略该层，直接在项目目录下拼会话。
func ResourceDir(loc Location) (string, error) {
	projectDir := filepath.Join(loc.ArchiveRoot, loc.Project)
	arcDir, err := firstArcSubdir(projectDir)
	if err != nil {
		return "", err
	}

	sessionDir := filepath.Join(projectDir, arcDir, loc.Session)
	switch loc.Ref.Scope {
	case model.ScopeScan:
		return filepath.Join(sessionDir, "SCANS", loc.Ref.ScanID, loc.Resource), nil
	case model.ScopeAssessor:
		return filepath.Join(sessionDir, "ASSESSORS", loc.Ref.AssessorID, loc.Resource), nil
	case model.ScopeSession:
		return filepath.Join(sessionDir, "RESOURCES", loc.Resource), nil
	}
	return "", fmt.Errorf("unknown resource scope: %s", loc.Ref.Scope)
}

func firstArcSubdir(projectDir string) (string, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return "", fmt.Errorf("read project directory %s: %w", projectDir, err)
	}
	// os.ReadDir 已按文件名排序，取第一个匹配项即可保证结果稳定。
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "arc") {
			return entry.Name(), nil
		}
	}
	// 没有 arc 子目录的旧式归档：会话直接挂在项目目录下。
	return "", nil
}

// Resolve 把 catalog 里的逻辑引用映射为磁盘路径。
// 按已知成功率从高到低依次探测：
//
//  1. URI 本身是绝对路径且存在
//  2. 截掉首个 "/files/" 之前的部分，拼到资源目录下后存在
//  3. URI 原样拼到资源目录下后存在
//
// 三种探测都落空时，仍返回“本应在”的候选路径（绝对 URI 返回自身，
// 相对 URI 返回截断拼接结果），由检查器据此判定 missing。
// 只有两种情况返回 ok=false：URI 为空，或相对 URI 且没有资源目录可拼。
func Resolve(uri, resourceDir string) (path string, ok bool) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", false
	}

	abs := filepath.IsAbs(uri)
	if abs && fileExists(uri) {
		return uri, true
	}

	var stripped string
	if resourceDir != "" {
		stripped = filepath.Join(resourceDir, stripFilesPrefix(uri))
		if fileExists(stripped) {
			return stripped, true
		}
		unmodified := filepath.Join(resourceDir, uri)
		if fileExists(unmodified) {
			return unmodified, true
		}
	}

	if abs {
		return uri, true
	}
	if stripped != "" {
		return stripped, true
	}
	return "", false
}

// stripFilesPrefix 截掉 URI 中首个 "/files/" 及其之前的部分。
// catalog 常见写法形如 "/archive/.../files/1.dcm"，真正的相对路径在标记之后。
// 不含标记时原样返回。
func stripFilesPrefix(uri string) string {
	const marker = "/files/"
	if idx := strings.Index(uri, marker); idx >= 0 {
		return uri[idx+len(marker):]
	}
	return uri
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

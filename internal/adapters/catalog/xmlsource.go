package catalog

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"archive-inspector/internal/domain/model"
)

// XMLSource 直接从归档目录读取层级与 catalog.xml。
// 目录约定：{root}/{project}/{arc*}/{session}/{SCANS|ASSESSORS|RESOURCES}/...
type XMLSource struct {
	Root string
}

func NewXMLSource(root string) *XMLSource {
	return &XMLSource{Root: root}
}

// ListProjects 把归档根下的每个目录当作一个项目。
func (s *XMLSource) ListProjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read archive root %s: %w", s.Root, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

func (s *XMLSource) ArchiveRoot(ctx context.Context, projectID string) (string, error) {
	info, err := os.Stat(filepath.Join(s.Root, projectID))
	if err != nil {
		return "", fmt.Errorf("stat project %s: %w", projectID, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project %s is not a directory", projectID)
	}
	return s.Root, nil
}

// ListSessions 把 arc 子目录（缺省时项目目录）下的每个目录当作一个会话。
func (s *XMLSource) ListSessions(ctx context.Context, projectID string) ([]model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sessionParent, err := s.arcDir(projectID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(sessionParent)
	if err != nil {
		return nil, fmt.Errorf("read sessions of %s: %w", projectID, err)
	}
	var out []model.Session
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, model.Session{Label: entry.Name()})
		}
	}
	return out, nil
}

// ListResources 按挂载层级枚举资源目录。
// SCANS / ASSESSORS / RESOURCES 目录不存在按“没有该层级的资源”处理，不算错误。
func (s *XMLSource) ListResources(ctx context.Context, projectID string, session model.Session, scope model.Scope) ([]model.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	arcDir, err := s.arcDir(projectID)
	if err != nil {
		return nil, err
	}
	sessionDir := filepath.Join(arcDir, session.Label)

	switch scope {
	case model.ScopeSession:
		labels, err := listSubdirs(filepath.Join(sessionDir, "RESOURCES"))
		if err != nil {
			return nil, err
		}
		var out []model.Resource
		for _, label := range labels {
			dir := filepath.Join(sessionDir, "RESOURCES", label)
			out = append(out, model.Resource{
				Label:         label,
				Ref:           model.ResourceRef{Scope: model.ScopeSession},
				CatalogBacked: findCatalogFile(dir) != "",
			})
		}
		return out, nil
	case model.ScopeScan:
		return s.listNestedResources(filepath.Join(sessionDir, "SCANS"), func(id string) model.ResourceRef {
			return model.ResourceRef{Scope: model.ScopeScan, ScanID: id}
		})
	case model.ScopeAssessor:
		return s.listNestedResources(filepath.Join(sessionDir, "ASSESSORS"), func(id string) model.ResourceRef {
			return model.ResourceRef{Scope: model.ScopeAssessor, AssessorID: id}
		})
	}
	return nil, fmt.Errorf("unknown scope: %s", scope)
}

// listNestedResources 枚举 SCANS/ASSESSORS 下两层目录：{id}/{label}。
func (s *XMLSource) listNestedResources(parent string, makeRef func(id string) model.ResourceRef) ([]model.Resource, error) {
	ids, err := listSubdirs(parent)
	if err != nil {
		return nil, err
	}
	var out []model.Resource
	for _, id := range ids {
		labels, err := listSubdirs(filepath.Join(parent, id))
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			dir := filepath.Join(parent, id, label)
			out = append(out, model.Resource{
				Label:         label,
				Ref:           makeRef(id),
				CatalogBacked: findCatalogFile(dir) != "",
			})
		}
	}
	return out, nil
}

// ListEntries 解析资源目录里的 catalog 文件。
func (s *XMLSource) ListEntries(ctx context.Context, projectID string, session model.Session, res model.Resource, resourceDir string) ([]model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	catalogPath := findCatalogFile(resourceDir)
	if catalogPath == "" {
		return nil, fmt.Errorf("no catalog file in %s", resourceDir)
	}

	raw, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", catalogPath, err)
	}
	return ParseCatalogXML(raw)
}

func (s *XMLSource) arcDir(projectID string) (string, error) {
	projectDir := filepath.Join(s.Root, projectID)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return "", fmt.Errorf("read project directory %s: %w", projectDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "arc") {
			return filepath.Join(projectDir, entry.Name()), nil
		}
	}
	// 没有 arc 子目录的旧式归档：会话直接挂在项目目录下。
	return projectDir, nil
}

// findCatalogFile 在资源目录下找 catalog 文件：
// 优先 catalog.xml，其次任意 *_catalog.xml。找不到返回空串。
func findCatalogFile(dir string) string {
	direct := filepath.Join(dir, "catalog.xml")
	if _, err := os.Stat(direct); err == nil {
		return direct
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), "_catalog.xml") {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

// catalog XML 结构。按本地名匹配，兼容带命名空间前缀的写法。
type catalogDoc struct {
	XMLName xml.Name          `xml:"Catalog"`
	Entries []catalogEntryXML `xml:"entries>entry"`
}

type catalogEntryXML struct {
	Name     string `xml:"name,attr"`
	URI      string `xml:"URI,attr"`
	FileSize string `xml:"file_size,attr"`
}

// ParseCatalogXML 解析 catalog XML 内容。
// name 缺省时取 URI 末段；file_size 非法或缺省时跳过大小。
func ParseCatalogXML(raw []byte) ([]model.CatalogEntry, error) {
	var doc catalogDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog xml: %w", err)
	}

	out := make([]model.CatalogEntry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		name := e.Name
		if name == "" {
			name = filepath.Base(e.URI)
		}
		entry := model.CatalogEntry{Name: name, URI: e.URI}
		if e.FileSize != "" {
			if size, err := strconv.ParseInt(e.FileSize, 10, 64); err == nil && size >= 0 {
				entry.ExpectedSize = &size
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

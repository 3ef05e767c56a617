package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"archive-inspector/internal/domain/model"
)

// ManifestSource 从外部导出的 YAML 清单提供期望文件列表。
// 适用于没有 catalog.xml、但能从上游系统导出文件清单的归档。
// 层级全部在内存里，磁盘只用来做存在性检查。
type ManifestSource struct {
	doc manifestDoc
}

type manifestDoc struct {
	ArchiveRoot string            `yaml:"archive_root"`
	Projects    []manifestProject `yaml:"projects"`
}

type manifestProject struct {
	ID       string            `yaml:"id"`
	Sessions []manifestSession `yaml:"sessions"`
}

type manifestSession struct {
	Label     string             `yaml:"label"`
	Resources []manifestResource `yaml:"resources,omitempty"`
	Scans     []manifestHolder   `yaml:"scans,omitempty"`
	Assessors []manifestHolder   `yaml:"assessors,omitempty"`
}

type manifestHolder struct {
	ID        string             `yaml:"id"`
	Resources []manifestResource `yaml:"resources"`
}

type manifestResource struct {
	Label   string          `yaml:"label"`
	Entries []manifestEntry `yaml:"entries"`
}

type manifestEntry struct {
	Name string `yaml:"name"`
	URI  string `yaml:"uri"`
	Size *int64 `yaml:"size,omitempty"`
}

// LoadManifest 读取并解析 YAML 清单文件。
func LoadManifest(path string) (*ManifestSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest 解析清单内容并做基础结构校验。
func ParseManifest(raw []byte) (*ManifestSource, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := validateManifest(doc); err != nil {
		return nil, err
	}
	return &ManifestSource{doc: doc}, nil
}

func validateManifest(doc manifestDoc) error {
	if strings.TrimSpace(doc.ArchiveRoot) == "" {
		return errors.New("manifest: archive_root is required")
	}
	if len(doc.Projects) == 0 {
		return errors.New("manifest: projects is empty")
	}
	seen := make(map[string]struct{}, len(doc.Projects))
	for _, p := range doc.Projects {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return errors.New("manifest: project id is required")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("manifest: duplicate project id %s", id)
		}
		seen[id] = struct{}{}
		for _, s := range p.Sessions {
			if strings.TrimSpace(s.Label) == "" {
				return fmt.Errorf("manifest: project %s: session label is required", id)
			}
		}
	}
	return nil
}

func (m *ManifestSource) ListProjects(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(m.doc.Projects))
	for _, p := range m.doc.Projects {
		out = append(out, p.ID)
	}
	return out, nil
}

func (m *ManifestSource) ArchiveRoot(ctx context.Context, projectID string) (string, error) {
	if _, ok := m.project(projectID); !ok {
		return "", fmt.Errorf("project %s not in manifest", projectID)
	}
	return m.doc.ArchiveRoot, nil
}

func (m *ManifestSource) ListSessions(ctx context.Context, projectID string) ([]model.Session, error) {
	p, ok := m.project(projectID)
	if !ok {
		return nil, fmt.Errorf("project %s not in manifest", projectID)
	}
	out := make([]model.Session, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		out = append(out, model.Session{Label: s.Label})
	}
	return out, nil
}

// ListResources 返回清单里声明的资源。清单里出现即视为有期望文件列表。
func (m *ManifestSource) ListResources(ctx context.Context, projectID string, session model.Session, scope model.Scope) ([]model.Resource, error) {
	s, ok := m.session(projectID, session.Label)
	if !ok {
		return nil, fmt.Errorf("session %s/%s not in manifest", projectID, session.Label)
	}

	var out []model.Resource
	switch scope {
	case model.ScopeSession:
		for _, r := range s.Resources {
			out = append(out, model.Resource{
				Label:         r.Label,
				Ref:           model.ResourceRef{Scope: model.ScopeSession},
				CatalogBacked: true,
			})
		}
	case model.ScopeScan:
		for _, scan := range s.Scans {
			for _, r := range scan.Resources {
				out = append(out, model.Resource{
					Label:         r.Label,
					Ref:           model.ResourceRef{Scope: model.ScopeScan, ScanID: scan.ID},
					CatalogBacked: true,
				})
			}
		}
	case model.ScopeAssessor:
		for _, assessor := range s.Assessors {
			for _, r := range assessor.Resources {
				out = append(out, model.Resource{
					Label:         r.Label,
					Ref:           model.ResourceRef{Scope: model.ScopeAssessor, AssessorID: assessor.ID},
					CatalogBacked: true,
				})
			}
		}
	default:
		return nil, fmt.Errorf("unknown scope: %s", scope)
	}
	return out, nil
}

func (m *ManifestSource) ListEntries(ctx context.Context, projectID string, session model.Session, res model.Resource, resourceDir string) ([]model.CatalogEntry, error) {
	s, ok := m.session(projectID, session.Label)
	if !ok {
		return nil, fmt.Errorf("session %s/%s not in manifest", projectID, session.Label)
	}

	var resources []manifestResource
	switch res.Ref.Scope {
	case model.ScopeSession:
		resources = s.Resources
	case model.ScopeScan:
		for _, scan := range s.Scans {
			if scan.ID == res.Ref.ScanID {
				resources = scan.Resources
				break
			}
		}
	case model.ScopeAssessor:
		for _, assessor := range s.Assessors {
			if assessor.ID == res.Ref.AssessorID {
				resources = assessor.Resources
				break
			}
		}
	}

	for _, r := range resources {
		if r.Label != res.Label {
			continue
		}
		out := make([]model.CatalogEntry, 0, len(r.Entries))
		for _, e := range r.Entries {
			name := e.Name
			if name == "" {
				name = e.URI
			}
			out = append(out, model.CatalogEntry{Name: name, URI: e.URI, ExpectedSize: e.Size})
		}
		return out, nil
	}
	return nil, fmt.Errorf("resource %s not in manifest session %s/%s", res.Label, projectID, session.Label)
}

func (m *ManifestSource) project(projectID string) (manifestProject, bool) {
	for _, p := range m.doc.Projects {
		if p.ID == projectID {
			return p, true
		}
	}
	return manifestProject{}, false
}

func (m *ManifestSource) session(projectID, label string) (manifestSession, bool) {
	p, ok := m.project(projectID)
	if !ok {
		return manifestSession{}, false
	}
	for _, s := range p.Sessions {
		if s.Label == label {
			return s, true
		}
	}
	return manifestSession{}, false
}

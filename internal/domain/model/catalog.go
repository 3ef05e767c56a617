package model

// Session 表示目录树中的一次成像会话（项目的直接子节点）。
type Session struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
}

// Resource 表示挂在会话 / scan / assessor 上的一个文件集合。
type Resource struct {
	Label string      `json:"label"`
	Ref   ResourceRef `json:"ref"`
	// CatalogBacked 为 false 表示该资源没有关联的文件清单，
	// 遍历时跳过且贡献零个文件，不算错误。
	CatalogBacked bool `json:"catalog_backed"`
}

// CatalogEntry 表示 catalog 中登记的一个期望文件。
type CatalogEntry struct {
	Name string `json:"name"`
	// URI 是文件的逻辑引用：可能是绝对路径，也可能是内嵌 /files/ 标记的相对引用。
	URI          string `json:"uri"`
	ExpectedSize *int64 `json:"expected_size,omitempty"`
}

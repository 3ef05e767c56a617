package model

// ExportInfo 是导出产物（CSV / PDF）的索引记录，对应 exports 表。
// file_path 指向磁盘产物，sha256 用于事后校验产物未被改动。
type ExportInfo struct {
	ExportID         string `json:"export_id"`
	RunID            string `json:"run_id"`
	ExportType       string `json:"export_type"`
	FilePath         string `json:"file_path"`
	SHA256           string `json:"sha256"`
	GeneratedAt      int64  `json:"generated_at"`
	GeneratorVersion string `json:"generator_version"`
	Status           string `json:"status"`
}

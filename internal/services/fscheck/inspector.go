package fscheck

import (
	"errors"
	"io/fs"
	"os"

	"archive-inspector/internal/domain/model"
)

// Inspection 是单个文件的检查结论，由调用方转成结果行。
type Inspection struct {
	Path         string
	Status       model.FileStatus
	ErrorMessage string
	ActualSize   *int64
	SizeMatch    *bool
}

// Inspect 对解析出的路径做一次 os.Stat 并分类：
//
//	resolved=false        -> unresolved（引用无法映射，与文件缺失是两回事）
//	stat 成功             -> found，附带磁盘大小
//	fs.ErrNotExist        -> missing
//	其他 stat 错误        -> error，错误信息就地记录，不向上传播
//
// verifySize 开启且 catalog 带大小时，额外比对大小；不一致不改变分类。
func Inspect(path string, resolved bool, expectedSize *int64, verifySize bool) Inspection {
	if !resolved {
		return Inspection{Status: model.FileUnresolved}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Inspection{Path: path, Status: model.FileMissing}
		}
		return Inspection{
			Path:         path,
			Status:       model.FileError,
			ErrorMessage: err.Error(),
		}
	}

	size := info.Size()
	out := Inspection{
		Path:       path,
		Status:     model.FileFound,
		ActualSize: &size,
	}
	if verifySize && expectedSize != nil {
		match := *expectedSize == size
		out.SizeMatch = &match
	}
	return out
}

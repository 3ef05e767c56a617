package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// File 读取文件并计算 SHA-256，同时返回文件大小。
// 用于导出产物（CSV / PDF）的完整性登记。
func File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

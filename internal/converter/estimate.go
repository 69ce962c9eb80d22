package converter

import (
	"image"
	"os"
)

// EstimateMemory оценивает память на перекодирование файла:
// исходный и уменьшенный растр по 4 байта на пиксель.
// Если заголовок не читается, берётся утроенный размер файла.
func EstimateMemory(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err == nil && cfg.Width > 0 && cfg.Height > 0 {
		return int64(cfg.Width) * int64(cfg.Height) * 4 * 2
	}

	st, err := f.Stat()
	if err != nil {
		return 0
	}
	return st.Size() * 3
}

package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// Vips перекодирует изображения внешним vips в WebP.
type Vips struct {
	// vipsPath - путь к бинарнику vips.
	vipsPath string

	maxDimension int
	quality      int

	// timeout - таймаут на конвертацию одного файла.
	timeout time.Duration
}

// NewVips создаёт перекодировщик на основе vips.
func NewVips(vipsPath string, maxDimension, quality int) *Vips {
	return &Vips{
		vipsPath:     vipsPath,
		maxDimension: maxDimension,
		quality:      quality,
		timeout:      5 * time.Minute,
	}
}

// SetTimeout устанавливает таймаут на конвертацию.
func (v *Vips) SetTimeout(d time.Duration) {
	v.timeout = d
}

// Name возвращает имя реализации.
func (v *Vips) Name() string { return "vips" }

// Transform уменьшает изображение до maxDimension по длинной стороне и сохраняет в WebP.
// Маленькие изображения не увеличиваются (--size down).
func (v *Vips) Transform(ctx context.Context, path string) (string, error) {
	// Атомарная запись: vips определяет формат по расширению временного файла
	tmp, dst := outputPaths(path, ".webp")
	out := fmt.Sprintf("%s[Q=%d,strip]", tmp, v.quality)

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	dim := strconv.Itoa(v.maxDimension)
	cmd := exec.CommandContext(ctx, v.vipsPath, "thumbnail", path, out, dim,
		"--height", dim, "--size", "down")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		msg := err.Error()
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, bytes.TrimSpace(stderr.Bytes()))
		}
		return "", apperr.Transform("converter.vips", fmt.Errorf("vips thumbnail: %s", msg))
	}

	if err := commit(tmp, dst); err != nil {
		return "", apperr.Transform("converter.vips", err)
	}
	return dst, nil
}

// Package converter загружает изображения и перекодирует их перед отправкой.
package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/vipsfinder"
)

// Transcoder уменьшает и пережимает изображение.
// Результат никогда не превышает ни исходные размеры, ни ограничение по стороне.
// При ошибке исходный файл остаётся нетронутым.
type Transcoder interface {
	// Transform возвращает путь к перекодированному файлу.
	// Ошибки имеют вид apperr.ErrTransform.
	Transform(ctx context.Context, path string) (string, error)

	// Name возвращает имя реализации для логов.
	Name() string
}

// New выбирает перекодировщик по конфигурации.
// В режиме auto используется vips, если он найден, иначе встроенный.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Transcoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	native := NewNative(cfg.MaxDimension, cfg.Quality)

	switch cfg.Transcoder {
	case config.TranscoderNative:
		return native, nil
	case config.TranscoderVips, config.TranscoderAuto, "":
		info, err := vipsfinder.NewFinder(cfg.VipsPath).Find(ctx)
		if err != nil {
			if cfg.Transcoder == config.TranscoderVips {
				return nil, err
			}
			logger.Info("vips не найден, используется встроенный перекодировщик", zap.Error(err))
			return native, nil
		}
		logger.Info("используется vips",
			zap.String("path", info.Path), zap.String("version", info.Version))
		return NewVips(info.Path, cfg.MaxDimension, cfg.Quality), nil
	default:
		return nil, fmt.Errorf("неизвестный перекодировщик: %s", cfg.Transcoder)
	}
}

// outputPaths возвращает временный и итоговый путь результата рядом с исходником.
// Итоговый путь может совпасть с исходным: тогда исходник заменяется атомарно.
func outputPaths(src, ext string) (tmp, dst string) {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	return base + ".converting" + ext, base + ext
}

// commit переименовывает временный файл в итоговый.
func commit(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("не удалось переименовать %s -> %s: %w", tmp, dst, err)
	}
	return nil
}

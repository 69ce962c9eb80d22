package converter

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	// Декодеры входных форматов
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// Native перекодирует изображения средствами Go: Lanczos3 и JPEG.
type Native struct {
	maxDimension int
	quality      int
}

// NewNative создаёт встроенный перекодировщик.
func NewNative(maxDimension, quality int) *Native {
	return &Native{maxDimension: maxDimension, quality: quality}
}

// Name возвращает имя реализации.
func (n *Native) Name() string { return "native" }

// Transform декодирует файл, уменьшает его при необходимости и сохраняет в JPEG.
func (n *Native) Transform(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Transform("converter.native", err)
	}

	img, err := decodeFile(path)
	if err != nil {
		return "", apperr.Transform("converter.native", err)
	}

	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), n.maxDimension)
	if w != b.Dx() || h != b.Dy() {
		img = resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	}

	tmp, dst := outputPaths(path, ".jpg")
	if err := writeJPEG(tmp, flatten(img), n.quality); err != nil {
		_ = os.Remove(tmp)
		return "", apperr.Transform("converter.native", err)
	}
	if err := commit(tmp, dst); err != nil {
		return "", apperr.Transform("converter.native", err)
	}
	return dst, nil
}

// TargetSize вычисляет размер результата.
// Если обе стороны меньше limit, размер не меняется; иначе масштаб = длинная сторона / limit
// и каждая сторона делится на него с округлением вниз.
func TargetSize(width, height, limit int) (int, int) {
	if limit <= 0 || (width < limit && height < limit) {
		return width, height
	}
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= limit {
		return width, height
	}
	// floor(edge / (longest/limit)) в целых числах: длинная сторона получается ровно limit
	w := int(int64(width) * int64(limit) / int64(longest))
	h := int(int64(height) * int64(limit) / int64(longest))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать %s: %w", path, err)
	}
	return img, nil
}

// flatten накладывает изображение на белый фон: JPEG не хранит прозрачность.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("не удалось создать %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return fmt.Errorf("не удалось закодировать JPEG: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("не удалось записать %s: %w", path, err)
	}
	return nil
}

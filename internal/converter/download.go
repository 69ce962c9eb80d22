package converter

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/model"
)

// Getter выполняет GET-запрос; ответы вне 2xx возвращаются ошибкой.
type Getter interface {
	Get(ctx context.Context, ref string) (*http.Response, error)
}

// File - загруженный файл участника.
type File struct {
	// Path - путь во временной директории.
	Path string

	// MIME - тип содержимого.
	MIME string

	// Size - размер в байтах.
	Size int64
}

// Downloader сохраняет исходники во временную директорию под именем <id>.<ext>.
type Downloader struct {
	getter Getter
	dir    string
	logger *zap.Logger
}

// NewDownloader создаёт загрузчик. dir должна существовать.
func NewDownloader(getter Getter, dir string, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{getter: getter, dir: dir, logger: logger}
}

// Download загружает исходник участника.
// Частично записанный файл удаляется при любой ошибке.
func (d *Downloader) Download(ctx context.Context, m model.Member) (File, error) {
	resp, err := d.getter.Get(ctx, m.URL)
	if err != nil {
		return File{}, fmt.Errorf("не удалось загрузить %d: %w", m.ID, err)
	}
	defer resp.Body.Close()

	dst := filepath.Join(d.dir, strconv.FormatInt(m.ID, 10)+extFromURL(m.URL))
	tmp := dst + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return File{}, apperr.Network("converter.download", fmt.Errorf("не удалось создать %s: %w", tmp, err))
	}
	size, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return File{}, apperr.Network("converter.download", fmt.Errorf("не удалось сохранить %d: %w", m.ID, err))
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return File{}, apperr.Network("converter.download", fmt.Errorf("не удалось переименовать %s: %w", tmp, err))
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		if mt, err := mimetype.DetectFile(dst); err == nil {
			contentType = mediaType(mt.String())
		}
	}

	d.logger.Debug("исходник загружен",
		zap.Int64("id", m.ID),
		zap.String("path", dst),
		zap.String("mime", contentType),
		zap.String("size", humanize.IBytes(uint64(size))))

	return File{Path: dst, MIME: contentType, Size: size}, nil
}

// extFromURL возвращает расширение из пути ссылки, например ".jpg".
func extFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 6 || strings.ContainsAny(ext, `/\ `) {
		return ".bin"
	}
	return ext
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

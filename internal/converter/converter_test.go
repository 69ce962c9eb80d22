package converter

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/config"
	"github.com/artemshloyda/popularfeed/internal/model"
	"github.com/artemshloyda/popularfeed/internal/source"
	"github.com/artemshloyda/popularfeed/internal/source/sourcetest"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"small", 640, 480, 640, 480},
		{"just below", 1919, 1919, 1919, 1919},
		{"exactly max", 1920, 1080, 1920, 1080},
		{"wide", 3840, 2160, 1920, 1080},
		{"tall", 1200, 2400, 960, 1920},
		{"odd ratio", 4000, 3001, 1920, 1440},
		{"thin strip", 10000, 3, 1920, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetSize(tt.w, tt.h, 1920)
			assert.Equal(t, tt.wantW, w, "width")
			assert.Equal(t, tt.wantH, h, "height")
			assert.LessOrEqual(t, w, tt.w)
			assert.LessOrEqual(t, h, tt.h)
		})
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, sourcetest.PNG(w, h), 0644))
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestNative_Transform(t *testing.T) {
	n := NewNative(1920, 85)
	ctx := context.Background()

	t.Run("downscale", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "101.png")
		writePNG(t, src, 2400, 1200)

		out, err := n.Transform(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(filepath.Dir(src), "101.jpg"), out)

		w, h := imageSize(t, out)
		assert.Equal(t, 1920, w)
		assert.Equal(t, 960, h)
		assert.FileExists(t, src, "исходник не удаляется перекодировщиком")
	})

	t.Run("small keeps dimensions", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "102.png")
		writePNG(t, src, 300, 200)

		out, err := n.Transform(ctx, src)
		require.NoError(t, err)
		w, h := imageSize(t, out)
		assert.Equal(t, 300, w)
		assert.Equal(t, 200, h)
	})

	t.Run("jpeg replaced in place", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "103.jpg")
		f, err := os.Create(src)
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 50, 40)), nil))
		require.NoError(t, f.Close())

		out, err := n.Transform(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, src, out)
		w, h := imageSize(t, out)
		assert.Equal(t, 50, w)
		assert.Equal(t, 40, h)
		assert.NoFileExists(t, filepath.Join(filepath.Dir(src), "103.converting.jpg"))
	})

	t.Run("transparent background becomes white", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "104.png")
		img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
		f, err := os.Create(src)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())

		out, err := n.Transform(ctx, src)
		require.NoError(t, err)

		rf, err := os.Open(out)
		require.NoError(t, err)
		defer rf.Close()
		decoded, err := jpeg.Decode(rf)
		require.NoError(t, err)
		r, g, b, _ := decoded.At(8, 8).RGBA()
		gray := color.Gray16Model.Convert(color.RGBA64{uint16(r), uint16(g), uint16(b), 0xffff}).(color.Gray16)
		assert.Greater(t, gray.Y, uint16(0xf000))
	})

	t.Run("decode failure", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "105.png")
		require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))

		_, err := n.Transform(ctx, src)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrTransform)
		assert.FileExists(t, src)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := n.Transform(ctx, filepath.Join(t.TempDir(), "nope.png"))
		assert.ErrorIs(t, err, apperr.ErrTransform)
	})
}

func newSourceClient(t *testing.T, base string) *source.Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SourceBaseURL = base
	cfg.RequestRPS = 0
	cfg.HTTPTimeout = 5 * time.Second
	c, err := source.NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestDownloader_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image/abc/yande.re%20101%20tag.png", "/image/abc/yande.re 101 tag.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(sourcetest.PNG(20, 10))
		case "/image/noct.png":
			w.Header().Set("Content-Type", "")
			_, _ = w.Write(sourcetest.PNG(20, 10))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(newSourceClient(t, srv.URL), dir, nil)
	ctx := context.Background()

	t.Run("named by id and url extension", func(t *testing.T) {
		f, err := d.Download(ctx, model.Member{ID: 101, URL: srv.URL + "/image/abc/yande.re%20101%20tag.png"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "101.png"), f.Path)
		assert.Equal(t, "image/png", f.MIME)
		assert.Greater(t, f.Size, int64(0))
		assert.NoFileExists(t, f.Path+".part")
	})

	t.Run("mime sniffed when header missing", func(t *testing.T) {
		f, err := d.Download(ctx, model.Member{ID: 102, URL: srv.URL + "/image/noct.png"})
		require.NoError(t, err)
		assert.Equal(t, "image/png", f.MIME)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := d.Download(ctx, model.Member{ID: 103, URL: srv.URL + "/image/missing.jpg"})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNetwork)
		assert.NoFileExists(t, filepath.Join(dir, "103.jpg"))
	})
}

func TestExtFromURL(t *testing.T) {
	assert.Equal(t, ".jpg", extFromURL("https://files.yande.re/image/h/yande.re%201%20a.JPG"))
	assert.Equal(t, ".png", extFromURL("https://files/1.png?x=1"))
	assert.Equal(t, ".bin", extFromURL("https://files/noext"))
}

func TestNew_Native(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transcoder = config.TranscoderNative
	tr, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "native", tr.Name())
}

func TestNew_VipsMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transcoder = config.TranscoderVips
	cfg.VipsPath = filepath.Join(t.TempDir(), "no-vips")
	t.Setenv("POPULARFEED_VIPS", "")
	t.Setenv("PATH", t.TempDir())

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.Transcoder = config.TranscoderAuto
	tr, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "native", tr.Name())
}

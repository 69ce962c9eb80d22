// Package sourcetest содержит поддельный сайт-источник для тестов.
package sourcetest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Post описывает страницу поста поддельного сайта.
type Post struct {
	ID       int64
	Score    int64
	ParentID int64
	Children []int64

	// NoHighRes убирает ссылку a#highres со страницы.
	NoHighRes bool

	// Width и Height задают размер отдаваемого изображения (по умолчанию 64x48).
	Width, Height int
}

// Site - httptest-сервер с листингами, страницами постов и изображениями.
type Site struct {
	*httptest.Server

	mu       sync.Mutex
	listings map[string][]int64
	failing  map[string]bool
	posts    map[int64]Post
	hits     map[string]int
}

// New запускает сайт. Сервер закрывается вызывающим.
func New() *Site {
	s := &Site{
		listings: make(map[string][]int64),
		failing:  make(map[string]bool),
		posts:    make(map[int64]Post),
		hits:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SetListing задаёт содержимое листинга path.
func (s *Site) SetListing(path string, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[path] = ids
}

// FailListing заставляет листинг path отвечать 503.
func (s *Site) FailListing(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = true
}

// AddPost добавляет страницу поста.
func (s *Site) AddPost(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

// Hits возвращает количество запросов к пути.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// PostHits возвращает суммарное количество запросов к страницам постов.
func (s *Site) PostHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.hits {
		if strings.HasPrefix(p, "/post/show/") {
			n += c
		}
	}
	return n
}

// ImageURL возвращает абсолютную ссылку на изображение поста.
func (s *Site) ImageURL(id int64) string {
	return fmt.Sprintf("%s/image/%d.png", s.URL, id)
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/post/show/"):
		s.servePost(w, r)
	case strings.HasPrefix(r.URL.Path, "/image/"):
		s.serveImage(w, r)
	default:
		s.serveListing(w, r)
	}
}

func (s *Site) serveListing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids, ok := s.listings[r.URL.Path]
	failing := s.failing[r.URL.Path]
	s.mu.Unlock()

	if failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	b.WriteString(`<html><body><div id="content"><ul id="post-list-posts">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li id="p%d" class="creator-id-1"><a class="thumb" href="/post/show/%d">#</a></li>`, id, id)
	}
	b.WriteString(`</ul></div></body></html>`)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Site) servePost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/post/show/"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	p, ok := s.posts[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(PostPage(p, s.ImageURL(p.ID))))
}

func (s *Site) serveImage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/image/"), ".png")
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	p := s.posts[id]
	s.mu.Unlock()

	width, height := p.Width, p.Height
	if width == 0 || height == 0 {
		width, height = 64, 48
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(PNG(width, height))
}

// PostPage формирует разметку страницы поста в формате источника.
func PostPage(p Post, highres string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="content">`)
	if p.ParentID != 0 {
		fmt.Fprintf(&b, `<div class="status-notice">This post belongs to a <a href="/post/show/%d">parent post</a>.</div>`, p.ParentID)
	}
	if len(p.Children) > 0 {
		fmt.Fprintf(&b, `<div class="status-notice">This post has <a href="/post?tags=parent:%d">child posts</a>. (post #`, p.ID)
		for i, c := range p.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, `<a href="/post/show/%d">%d</a>`, c, c)
		}
		b.WriteString(`)</div>`)
	}
	fmt.Fprintf(&b, `<ul id="stats"><li>Score: <span id="post-score-%d">%d</span></li></ul>`, p.ID, p.Score)
	if !p.NoHighRes {
		fmt.Fprintf(&b, `<ul><li><a class="original-file-unchanged" id="highres" href="%s">Download larger version</a></li></ul>`, highres)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// PNG кодирует градиентное изображение заданного размера.
func PNG(width, height int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

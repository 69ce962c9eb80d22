// Package source загружает и разбирает страницы сайта-источника.
package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/config"
)

// maxPageSize ограничивает размер читаемой HTML-страницы.
const maxPageSize = 16 << 20

// Client выполняет запросы к источнику с общим User-Agent и ограничением частоты.
// Один экземпляр создаётся при старте и передаётся всем компонентам.
type Client struct {
	base      *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient создаёт клиент по конфигурации.
func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.SourceBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("некорректный адрес источника: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestRPS > 0 {
		limit = rate.Limit(cfg.RequestRPS)
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxConnsPerHost:       cfg.Workers + 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}

	return &Client{
		base:      base,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.HTTPTimeout, Transport: tr},
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}, nil
}

// URL превращает путь или ссылку со страницы в абсолютный адрес.
func (c *Client) URL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// Get выполняет GET-запрос. Ответ с кодом вне 2xx возвращается как сетевая ошибка.
// Вызывающий обязан закрыть тело ответа.
func (c *Client) Get(ctx context.Context, ref string) (*http.Response, error) {
	target := c.URL(ref)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Network("source.get", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperr.Network("source.get", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Network("source.get", err)
	}
	c.logger.Debug("запрос к источнику",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, apperr.Network("source.get", fmt.Errorf("%s: статус %d", target, resp.StatusCode))
	}
	return resp, nil
}

// Fetch загружает страницу и возвращает её текст.
func (c *Client) Fetch(ctx context.Context, endpoint string) (string, error) {
	resp, err := c.Get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", apperr.Network("source.fetch", fmt.Errorf("не удалось прочитать %s: %w", endpoint, err))
	}
	return string(b), nil
}

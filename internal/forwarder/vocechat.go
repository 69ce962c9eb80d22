package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// ChunkSize - размер части при загрузке файла.
const ChunkSize = 200 * 1024

// VoceChatOptions - параметры бота VoceChat.
type VoceChatOptions struct {
	// ServerURL - базовый адрес сервера, например https://chat.example.com.
	ServerURL string

	// APIKey - ключ бота (заголовок x-api-key).
	APIKey string

	// ChannelID - id группы для send_to_group.
	ChannelID string

	// UserAgent - заголовок User-Agent.
	UserAgent string

	// Timeout - таймаут одного запроса.
	Timeout time.Duration

	// ChunkSize переопределяет размер части (0 = ChunkSize).
	ChunkSize int
}

// VoceChat отправляет сообщения через bot API VoceChat.
// Вложение отправляется в три шага: prepare, загрузка частями, send_to_group.
type VoceChat struct {
	server    *url.URL
	apiKey    string
	channelID string
	userAgent string
	chunkSize int
	http      *http.Client
}

// UploadResult - ответ сервера на загрузку последней части.
type UploadResult struct {
	Path            string           `json:"path"`
	Size            int64            `json:"size"`
	Hash            string           `json:"hash"`
	ImageProperties *ImageProperties `json:"image_properties,omitempty"`
}

// ImageProperties - размеры изображения, определённые сервером.
type ImageProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// NewVoceChat создаёт клиента бота.
func NewVoceChat(opts VoceChatOptions) (*VoceChat, error) {
	server, err := url.Parse(strings.TrimRight(opts.ServerURL, "/"))
	if err != nil || server.Scheme == "" || server.Host == "" {
		return nil, fmt.Errorf("некорректный адрес сервера VoceChat %q", opts.ServerURL)
	}
	if opts.ChannelID == "" {
		return nil, errors.New("не указан канал VoceChat")
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = ChunkSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &VoceChat{
		server:    server,
		apiKey:    opts.APIKey,
		channelID: opts.ChannelID,
		userAgent: opts.UserAgent,
		chunkSize: chunk,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// SendText отправляет markdown-сообщение в канал.
func (v *VoceChat) SendText(ctx context.Context, text string) error {
	if err := v.sendToGroup(ctx, "text/markdown", []byte(text)); err != nil {
		return apperr.Delivery("forwarder.vocechat.text", err)
	}
	return nil
}

// SendAttachment загружает файл и публикует его в канал.
func (v *VoceChat) SendAttachment(ctx context.Context, path, contentType string) error {
	if contentType == "" {
		if mt, err := mimetype.DetectFile(path); err == nil {
			contentType = mt.String()
		} else {
			contentType = "application/octet-stream"
		}
	}

	fileID, err := v.prepare(ctx, contentType, filepath.Base(path))
	if err != nil {
		return apperr.Delivery("forwarder.vocechat.prepare", err)
	}

	res, err := v.upload(ctx, path, fileID)
	if err != nil {
		return apperr.Delivery("forwarder.vocechat.upload", err)
	}

	payload, err := json.Marshal(map[string]string{"path": res.Path})
	if err != nil {
		return apperr.Delivery("forwarder.vocechat.send", err)
	}
	if err := v.sendToGroup(ctx, "vocechat/file", payload); err != nil {
		return apperr.Delivery("forwarder.vocechat.send", err)
	}
	return nil
}

// prepare регистрирует файл и возвращает его id.
func (v *VoceChat) prepare(ctx context.Context, contentType, filename string) (string, error) {
	body, err := json.Marshal(struct {
		ContentType string `json:"content_type"`
		Filename    string `json:"filename"`
	}{contentType, filename})
	if err != nil {
		return "", err
	}

	resp, err := v.do(ctx, "/api/bot/file/prepare", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var fileID string
	if err := json.NewDecoder(resp.Body).Decode(&fileID); err != nil {
		return "", fmt.Errorf("некорректный ответ prepare: %w", err)
	}
	if fileID == "" {
		return "", errors.New("сервер вернул пустой id файла")
	}
	return fileID, nil
}

// upload отправляет файл частями; ответ на последнюю часть содержит путь файла.
func (v *VoceChat) upload(ctx context.Context, path, fileID string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить размер %s: %w", path, err)
	}
	size := st.Size()

	buf := make([]byte, v.chunkSize)
	var offset int64
	for {
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", path, err)
		}
		if n == 0 && offset < size {
			return nil, fmt.Errorf("файл %s короче заявленного размера", path)
		}
		offset += int64(n)
		last := offset >= size

		res, err := v.uploadChunk(ctx, fileID, buf[:n], last)
		if err != nil {
			return nil, err
		}
		if last {
			if res.Path == "" {
				return nil, errors.New("сервер не вернул путь загруженного файла")
			}
			return res, nil
		}
	}
}

func (v *VoceChat) uploadChunk(ctx context.Context, fileID string, chunk []byte, last bool) (*UploadResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("file_id", fileID); err != nil {
		return nil, err
	}
	if err := w.WriteField("chunk_is_last", strconv.FormatBool(last)); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("chunk_data", "chunk")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	resp, err := v.do(ctx, "/api/bot/file/upload", w.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !last {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	var res UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("некорректный ответ upload: %w", err)
	}
	return &res, nil
}

func (v *VoceChat) sendToGroup(ctx context.Context, contentType string, body []byte) error {
	resp, err := v.do(ctx, "/api/bot/send_to_group/"+url.PathEscape(v.channelID), contentType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do выполняет POST и проверяет код ответа.
func (v *VoceChat) do(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	target := v.server.JoinPath(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.Header.Set("x-api-key", v.apiKey)
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("%s: статус %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/converter"
	"github.com/artemshloyda/popularfeed/internal/forwarder"
	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/model"
	"github.com/artemshloyda/popularfeed/internal/progress"
	"github.com/artemshloyda/popularfeed/internal/storage"
)

// Downloader загружает исходник участника во временную директорию.
type Downloader interface {
	Download(ctx context.Context, m model.Member) (converter.File, error)
}

// Stats содержит статистику обработки.
type Stats struct {
	// Groups - количество отправленных в обработку групп.
	Groups int64

	// Delivered - доставленные участники.
	Delivered int64

	// Failed - участники с ошибками.
	Failed int64

	// Fallbacks - участники, отправленные без перекодирования.
	Fallbacks int64

	// InputBytes - общий размер загруженных исходников.
	InputBytes int64

	// OutputBytes - общий размер отправленных файлов.
	OutputBytes int64
}

// SavedBytes возвращает количество сэкономленных байт.
func (s *Stats) SavedBytes() int64 {
	return s.InputBytes - s.OutputBytes
}

// Options - параметры пула.
type Options struct {
	// Workers - количество одновременно обрабатываемых групп.
	Workers int

	// MaxMemoryMB - ограничение памяти на перекодирование (0 = без ограничения).
	MaxMemoryMB int

	// PostURL строит ссылку на страницу поста для сообщения о происхождении.
	PostURL func(id int64) string
}

// Pool обрабатывает группы с ограничением числа одновременно работающих задач.
// Участники одной группы обрабатываются последовательно в порядке группы.
type Pool struct {
	permits       *semaphore.Weighted
	wg            sync.WaitGroup
	downloader    Downloader
	transcoder    converter.Transcoder
	forwarder     forwarder.Forwarder
	journal       storage.Journal
	metrics       *metrics.Metrics
	logger        *zap.Logger
	postURL       func(id int64) string
	memoryLimiter *MemoryLimiter
	progress      *progress.Bar
	stats         Stats
}

// New создаёт пул.
func New(opts Options, d Downloader, t converter.Transcoder, f forwarder.Forwarder,
	j storage.Journal, m *metrics.Metrics, logger *zap.Logger) *Pool {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if j == nil {
		j = storage.JournalOf(nil)
	}
	postURL := opts.PostURL
	if postURL == nil {
		postURL = func(id int64) string { return fmt.Sprintf("#%d", id) }
	}
	return &Pool{
		permits:       semaphore.NewWeighted(int64(workers)),
		downloader:    d,
		transcoder:    t,
		forwarder:     f,
		journal:       j,
		metrics:       m,
		logger:        logger.With(zap.String("component", "worker")),
		postURL:       postURL,
		memoryLimiter: NewMemoryLimiter(opts.MaxMemoryMB),
	}
}

// SetProgressBar устанавливает прогресс-бар для отображения прогресса.
func (p *Pool) SetProgressBar(bar *progress.Bar) {
	p.progress = bar
}

// Dispatch ждёт свободный слот и запускает обработку группы.
// Ошибка возвращается только при отмене ctx до получения слота; тогда группа не запускается.
// Запущенная задача не наследует отмену ctx и доводит группу до конца.
func (p *Pool) Dispatch(ctx context.Context, g model.ImageGroup) error {
	if err := p.permits.Acquire(ctx, 1); err != nil {
		return err
	}

	atomic.AddInt64(&p.stats.Groups, 1)
	if p.progress != nil {
		p.progress.AddTotal(1)
	}

	taskCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.permits.Release(1)
		p.processGroup(taskCtx, g)
	}()
	return nil
}

// Wait ждёт завершения всех запущенных задач.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// processGroup отправляет сообщение о происхождении и затем всех участников по порядку.
// Ошибка одного участника не прерывает группу.
func (p *Pool) processGroup(ctx context.Context, g model.ImageGroup) {
	start := time.Now()
	log := p.logger.With(zap.Int64("group", g.ID))

	if err := p.forwarder.SendText(ctx, ProvenanceText(g, p.postURL)); err != nil {
		// Участники уже зарезервированы и не будут повторены в следующих циклах
		log.Error("не удалось отправить сообщение о группе, группа пропущена", zap.Error(err))
		for _, m := range g.Members {
			p.finishMember(ctx, g, m, false, err)
		}
		p.reportGroup(g, 0, len(g.Members))
		return
	}

	delivered, failed := 0, 0
	for _, m := range g.Members {
		transformed, err := p.processMember(ctx, m, log)
		p.finishMember(ctx, g, m, transformed, err)
		if err != nil {
			failed++
			log.Error("участник не доставлен",
				zap.Int64("member", m.ID),
				zap.String("kind", apperr.KindOf(err)),
				zap.Error(err))
			continue
		}
		delivered++
	}

	log.Info("группа обработана",
		zap.Int("delivered", delivered),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	p.reportGroup(g, delivered, failed)
}

// processMember загружает, перекодирует и отправляет одного участника.
// Временные файлы участника удаляются при любом исходе.
func (p *Pool) processMember(ctx context.Context, m model.Member, log *zap.Logger) (transformed bool, err error) {
	file, err := p.downloader.Download(ctx, m)
	if err != nil {
		return false, err
	}

	tmpFiles := []string{file.Path}
	defer func() {
		for _, path := range tmpFiles {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn("не удалось удалить временный файл", zap.String("path", path), zap.Error(rmErr))
			}
		}
	}()
	atomic.AddInt64(&p.stats.InputBytes, file.Size)

	sendPath, mime := file.Path, file.MIME
	out, err := p.transform(ctx, file.Path)
	if err != nil {
		// Отправляем оригинал
		log.Warn("перекодирование не удалось, отправляется оригинал",
			zap.Int64("member", m.ID), zap.Error(err))
		atomic.AddInt64(&p.stats.Fallbacks, 1)
		p.metrics.TransformFallback()
	} else {
		transformed = true
		if out != file.Path {
			tmpFiles = append(tmpFiles, out)
		}
		sendPath = out
		if mt, derr := mimetype.DetectFile(out); derr == nil {
			mime = mt.String()
		}
	}

	if err := p.forwarder.SendAttachment(ctx, sendPath, mime); err != nil {
		return transformed, err
	}

	if st, err := os.Stat(sendPath); err == nil {
		atomic.AddInt64(&p.stats.OutputBytes, st.Size())
	}
	return transformed, nil
}

func (p *Pool) transform(ctx context.Context, path string) (string, error) {
	release, err := p.memoryLimiter.Acquire(ctx, converter.EstimateMemory(path))
	if err != nil {
		return "", apperr.Transform("worker.memory", err)
	}
	defer release()
	return p.transcoder.Transform(ctx, path)
}

// finishMember записывает итог участника в журнал и метрики.
func (p *Pool) finishMember(ctx context.Context, g model.ImageGroup, m model.Member, transformed bool, err error) {
	d := storage.Delivery{
		MemberID:    m.ID,
		GroupID:     g.ID,
		Status:      storage.StatusOK,
		Transformed: transformed,
		FinishedAt:  time.Now(),
	}
	if err != nil {
		d.Status = storage.StatusFailed
		d.Error = err.Error()
		atomic.AddInt64(&p.stats.Failed, 1)
		p.metrics.Member(apperr.KindOf(err))
	} else {
		atomic.AddInt64(&p.stats.Delivered, 1)
		p.metrics.Member("ok")
	}

	if jerr := p.journal.RecordDelivery(ctx, d); jerr != nil {
		p.logger.Warn("не удалось записать журнал доставки",
			zap.Int64("member", m.ID), zap.Error(jerr))
	}
}

func (p *Pool) reportGroup(g model.ImageGroup, delivered, failed int) {
	if p.progress == nil {
		return
	}
	switch {
	case failed == 0:
		p.progress.Delivered()
	case delivered == 0:
		p.progress.Failed()
	default:
		p.progress.Partial()
	}
	if !p.progress.IsDisabled() {
		p.progress.WriteMessage("группа %d: доставлено %d из %d\n", g.ID, delivered, len(g.Members))
	}
}

// GetStats возвращает текущую статистику.
func (p *Pool) GetStats() Stats {
	return Stats{
		Groups:      atomic.LoadInt64(&p.stats.Groups),
		Delivered:   atomic.LoadInt64(&p.stats.Delivered),
		Failed:      atomic.LoadInt64(&p.stats.Failed),
		Fallbacks:   atomic.LoadInt64(&p.stats.Fallbacks),
		InputBytes:  atomic.LoadInt64(&p.stats.InputBytes),
		OutputBytes: atomic.LoadInt64(&p.stats.OutputBytes),
	}
}

// ProvenanceText формирует markdown-сообщение о происхождении группы.
func ProvenanceText(g model.ImageGroup, postURL func(id int64) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[#%d](%s) score: %d", g.ID, postURL(g.ID), g.Score)
	if len(g.Members) > 1 {
		b.WriteString("\n\n")
		for i, m := range g.Members[1:] {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "[#%d](%s)", m.ID, postURL(m.ID))
		}
	}
	return b.String()
}

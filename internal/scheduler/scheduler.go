// Package scheduler выполняет циклы опроса: листинги, отбор, обработка, очистка.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/model"
	"github.com/artemshloyda/popularfeed/internal/source"
	"github.com/artemshloyda/popularfeed/internal/storage"
)

// ListingFetcher загружает разметку листинга.
type ListingFetcher interface {
	Fetch(ctx context.Context, endpoint string) (string, error)
}

// GroupResolver разрешает группу изображений по id поста.
type GroupResolver interface {
	ResolveGroup(ctx context.Context, id int64) (model.ImageGroup, error)
}

// Dispatcher обрабатывает группы с ограниченной параллельностью.
type Dispatcher interface {
	// Dispatch запускает группу; ошибка означает, что группа не запущена.
	Dispatch(ctx context.Context, g model.ImageGroup) error

	// Wait ждёт завершения всех запущенных групп.
	Wait()
}

// State - состояние цикла.
type State string

// Состояния цикла.
const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateFiltering State = "filtering"
	StateAwaiting  State = "awaiting"
	StateEvicting  State = "evicting"
)

// Итоги цикла для метрик.
const (
	resultOK        = "ok"
	resultAborted   = "aborted"
	resultCancelled = "cancelled"
)

// Options - параметры планировщика.
type Options struct {
	// Listings - пути листингов, основной первым.
	Listings []string

	// ScoreThreshold - минимальный рейтинг группы.
	ScoreThreshold int64

	// Retention - срок хранения записей дедупликации.
	Retention time.Duration

	// PollInterval - период опроса.
	PollInterval time.Duration
}

// Scheduler - оркестратор конвейера.
// Все зависимости передаются явно при создании.
type Scheduler struct {
	opts     Options
	fetcher  ListingFetcher
	resolver GroupResolver
	store    storage.DedupStore
	pool     Dispatcher
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu      sync.RWMutex
	state   State
	last    model.CycleReport
	hasLast bool
}

// New создаёт планировщик.
func New(opts Options, f ListingFetcher, r GroupResolver, st storage.DedupStore,
	pool Dispatcher, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		opts:     opts,
		fetcher:  f,
		resolver: r,
		store:    st,
		pool:     pool,
		metrics:  m,
		logger:   logger.With(zap.String("component", "scheduler")),
		state:    StateIdle,
	}
}

// Run выполняет первый цикл сразу, затем по таймеру до отмены ctx.
// Отмена не прерывает уже запущенные группы; новый цикл после неё не начинается.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.PollInterval <= 0 {
		return fmt.Errorf("период опроса должен быть > 0, получено: %s", s.opts.PollInterval)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.logger.Info("планировщик запущен", zap.Duration("interval", s.opts.PollInterval))
	for ctx.Err() == nil {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("цикл прерван", zap.Error(err))
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	s.logger.Info("планировщик остановлен")
	return nil
}

// RunCycle выполняет один цикл. Ошибка возвращается, только если не удалось
// получить основной листинг; ошибки отдельных кандидатов, групп и участников
// логируются и не прерывают цикл.
func (s *Scheduler) RunCycle(ctx context.Context) (model.CycleReport, error) {
	report := model.CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := s.logger.With(zap.String("cycle", report.ID))
	result := resultOK

	defer func() {
		report.Duration = time.Since(report.StartedAt)
		s.metrics.ObserveCycle(result, report.Duration, report.Candidates)
		s.setState(StateIdle)
		s.mu.Lock()
		s.last, s.hasLast = report, true
		s.mu.Unlock()
	}()

	s.setState(StateFetching)
	candidates, err := s.collect(ctx, log)
	if err != nil {
		result = resultAborted
		report.Err = err.Error()
		return report, err
	}
	report.Candidates = len(candidates)
	log.Info("кандидаты получены", zap.Int("candidates", len(candidates)))

	s.setState(StateFiltering)
	if cancelled := s.filterAndDispatch(ctx, candidates, &report, log); cancelled {
		result = resultCancelled
	}

	s.setState(StateAwaiting)
	s.pool.Wait()

	s.setState(StateEvicting)
	evicted, err := s.store.EvictOlderThan(context.WithoutCancel(ctx), s.opts.Retention)
	if err != nil {
		log.Warn("очистка хранилища не удалась", zap.Error(err))
	} else {
		report.Evicted = evicted
		s.metrics.Evicted(evicted)
	}

	log.Info("цикл завершён",
		zap.Int("candidates", report.Candidates),
		zap.Int("already_seen", report.AlreadySeen),
		zap.Int("resolve_failed", report.ResolveFailed),
		zap.Int("below_threshold", report.BelowThreshold),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("dispatched", report.Dispatched),
		zap.Int64("evicted", report.Evicted),
		zap.Duration("duration", time.Since(report.StartedAt)))
	return report, nil
}

// collect загружает листинги и объединяет id без повторов, сохраняя порядок.
// Ошибка основного листинга прерывает цикл, ошибки дополнительных пропускаются.
func (s *Scheduler) collect(ctx context.Context, log *zap.Logger) ([]int64, error) {
	var (
		out  []int64
		seen = make(map[int64]struct{})
	)
	for i, listing := range s.opts.Listings {
		ids, err := s.listing(ctx, listing)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("основной листинг %s: %w", listing, err)
			}
			log.Warn("дополнительный листинг пропущен",
				zap.String("listing", listing),
				zap.String("kind", apperr.KindOf(err)),
				zap.Error(err))
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Scheduler) listing(ctx context.Context, endpoint string) ([]int64, error) {
	markup, err := s.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return source.ParseListing(markup)
}

// filterAndDispatch отбирает группы и отправляет их в пул.
// Возвращает true, если отбор остановлен отменой ctx.
func (s *Scheduler) filterAndDispatch(ctx context.Context, candidates []int64, report *model.CycleReport, log *zap.Logger) bool {
	// covered - участники групп, уже разрешённых в этом цикле
	covered := make(map[int64]struct{})

	for _, id := range candidates {
		if ctx.Err() != nil {
			log.Info("отбор остановлен отменой")
			return true
		}
		if _, ok := covered[id]; ok {
			continue
		}

		seen, err := s.store.Contains(ctx, model.DedupKey(id))
		if err != nil {
			log.Error("ошибка хранилища, кандидат пропущен", zap.Int64("id", id), zap.Error(err))
			continue
		}
		if seen {
			report.AlreadySeen++
			s.metrics.Group(metrics.GroupSeen)
			continue
		}

		g, err := s.resolver.ResolveGroup(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			report.ResolveFailed++
			s.metrics.Group(metrics.GroupResolveFailed)
			log.Warn("группа не разрешена",
				zap.Int64("id", id),
				zap.String("kind", apperr.KindOf(err)),
				zap.Error(err))
			continue
		}
		if _, ok := covered[g.ID]; ok {
			continue
		}
		for _, m := range g.Members {
			covered[m.ID] = struct{}{}
		}

		allSeen, err := s.allStored(ctx, g)
		if err != nil {
			log.Error("ошибка хранилища, группа пропущена", zap.Int64("group", g.ID), zap.Error(err))
			continue
		}
		if allSeen {
			report.Duplicates++
			s.metrics.Group(metrics.GroupDuplicate)
			log.Debug("группа уже доставлялась", zap.Int64("group", g.ID))
			continue
		}
		if g.Score < s.opts.ScoreThreshold {
			report.BelowThreshold++
			s.metrics.Group(metrics.GroupBelowThreshold)
			log.Debug("рейтинг ниже порога", zap.Int64("group", g.ID), zap.Int64("score", g.Score))
			continue
		}

		if ctx.Err() != nil {
			return true
		}
		// Резерв до начала работы: сбой посреди доставки не приведёт к повтору
		if err := s.reserve(ctx, g); err != nil {
			log.Error("не удалось зарезервировать группу", zap.Int64("group", g.ID), zap.Error(err))
			continue
		}

		if err := s.pool.Dispatch(ctx, g); err != nil {
			log.Warn("группа зарезервирована, но не запущена из-за отмены",
				zap.Int64("group", g.ID), zap.Error(err))
			return true
		}
		report.Dispatched++
		s.metrics.Group(metrics.GroupDispatched)
		log.Info("группа отправлена в обработку",
			zap.Int64("group", g.ID),
			zap.Int64("score", g.Score),
			zap.Int("members", len(g.Members)))
	}
	return false
}

func (s *Scheduler) allStored(ctx context.Context, g model.ImageGroup) (bool, error) {
	for _, m := range g.Members {
		ok, err := s.store.Contains(ctx, m.Key())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scheduler) reserve(ctx context.Context, g model.ImageGroup) error {
	for _, m := range g.Members {
		if err := s.store.Insert(ctx, m.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Debug("состояние", zap.String("state", string(st)))
}

// State возвращает текущее состояние.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastReport возвращает итог последнего цикла.
func (s *Scheduler) LastReport() (model.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

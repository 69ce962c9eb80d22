// Package admin содержит служебный HTTP-сервер: /healthz, /metrics и /stats.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/metrics"
	"github.com/artemshloyda/popularfeed/internal/model"
	"github.com/artemshloyda/popularfeed/internal/scheduler"
	"github.com/artemshloyda/popularfeed/internal/storage"
	"github.com/artemshloyda/popularfeed/internal/worker"
)

// Status - источник состояния планировщика.
type Status interface {
	State() scheduler.State
	LastReport() (model.CycleReport, bool)
}

// Counter - источник количества записей дедупликации.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// WorkerStats возвращает статистику пула.
type WorkerStats func() worker.Stats

// Deps - зависимости сервера. Любое поле, кроме Metrics, может быть nil.
type Deps struct {
	Metrics *metrics.Metrics
	Status  Status
	Store   Counter
	Journal storage.Journal
	Workers WorkerStats
}

// Server - служебный HTTP-сервер.
type Server struct {
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
	startTime  time.Time
}

// New создаёт сервер и регистрирует маршруты.
func New(addr string, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		deps:      deps,
		router:    router,
		logger:    logger.With(zap.String("component", "admin")),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	s.router.GET("/stats", s.stats)
}

// Handler возвращает http.Handler сервера.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Status != nil {
		body["state"] = string(s.deps.Status.State())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{}

	if s.deps.Status != nil {
		body["state"] = string(s.deps.Status.State())
		if report, ok := s.deps.Status.LastReport(); ok {
			body["last_cycle"] = report
		}
	}

	if s.deps.Store != nil {
		n, err := s.deps.Store.Count(ctx)
		if err != nil {
			s.logger.Warn("не удалось получить количество записей", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		body["dedup_entries"] = n
	}

	if s.deps.Journal != nil {
		st, err := s.deps.Journal.DeliveryStats(ctx)
		if err != nil {
			s.logger.Warn("не удалось получить журнал доставки", zap.Error(err))
		} else {
			body["deliveries"] = gin.H{"total": st.Total, "ok": st.OK, "failed": st.Failed}
		}
	}

	if s.deps.Workers != nil {
		ws := s.deps.Workers()
		body["worker"] = gin.H{
			"groups":       ws.Groups,
			"delivered":    ws.Delivered,
			"failed":       ws.Failed,
			"fallbacks":    ws.Fallbacks,
			"input_bytes":  ws.InputBytes,
			"output_bytes": ws.OutputBytes,
		}
	}

	c.JSON(http.StatusOK, body)
}

// Start запускает сервер в отдельной горутине.
func (s *Server) Start() {
	s.logger.Info("служебный сервер запущен", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("служебный сервер остановлен с ошибкой", zap.Error(err))
		}
	}()
}

// Stop корректно останавливает сервер.
func (s *Server) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(stopCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/quorum-social/quorum/cachestore"
	"github.com/quorum-social/quorum/directory"
	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"
	"github.com/quorum-social/quorum/moderation"
	"github.com/quorum-social/quorum/notifs"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	db     *gorm.DB
	logger *slog.Logger
	echo   *echo.Echo
	httpd  *http.Server

	eventman   *events.EventManager
	dispatcher *events.Dispatcher

	intake  *moderation.Intake
	actions *moderation.Actions
	appeals *moderation.Appeals
	queue   *moderation.Queue
	reports *moderation.Reports
}

func runMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Moderator{},
		&models.ModerationAction{},
		&models.Appeal{},
		&models.Report{},
		&events.OutboxEvent{},
	)
	if err != nil {
		return fmt.Errorf("database migration: %w", err)
	}
	return nil
}

type Config struct {
	Logger     *slog.Logger
	Bind       string
	RedisURL   string
	WebhookURL string
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	var cache cachestore.CacheStore
	if config.RedisURL != "" {
		csh, err := cachestore.NewRedisCacheStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %w", err)
		}
		cache = csh
	} else {
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Second)
	}

	var notifier notifs.Notifier = &notifs.NullNotifier{}
	if config.WebhookURL != "" {
		notifier = notifs.NewWebhookNotifier(config.WebhookURL)
	}

	dir := directory.NewCacheDirectory(directory.NewGormDirectory(db), 10_000, time.Minute*5)

	eventman := events.NewEventManager(logger)

	srv := &Server{
		db:         db,
		logger:     logger,
		eventman:   eventman,
		dispatcher: events.NewDispatcher(db, eventman, logger),
		intake:     moderation.NewIntake(db, logger),
		actions:    moderation.NewActions(db, notifier, logger),
		appeals:    moderation.NewAppeals(db, dir, logger),
		queue:      moderation.NewQueue(db, cache, logger),
		reports:    moderation.NewReports(db, logger),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.handleHealthCheck)

	api := e.Group("/api/moderation")
	api.POST("/recommendations", srv.handleSubmitRecommendation)
	api.GET("/recommendations/pending", srv.handleListPendingRecommendations)
	api.GET("/recommendations/stats", srv.handleIntakeStats)

	api.POST("/actions", srv.handleCreateAction)
	api.GET("/actions", srv.handleListActions)
	api.GET("/actions/:id", srv.handleGetAction)
	api.POST("/actions/:id/approve", srv.handleApproveAction)
	api.POST("/actions/:id/reject", srv.handleRejectAction)
	api.POST("/actions/:id/appeals", srv.handleCreateAppeal)
	api.GET("/users/:userId/actions", srv.handleGetUserActions)
	api.POST("/cooling-off", srv.handleSendCoolingOffPrompt)

	api.GET("/appeals/pending", srv.handleGetPendingAppeals)
	api.GET("/appeals/statistics", srv.handleAppealStatistics)
	api.GET("/appeals/:id", srv.handleGetAppeal)
	api.POST("/appeals/:id/assign", srv.handleAssignAppeal)
	api.POST("/appeals/:id/unassign", srv.handleUnassignAppeal)
	api.POST("/appeals/:id/review", srv.handleReviewAppeal)

	api.GET("/queue", srv.handleGetQueue)
	api.GET("/queue/stats", srv.handleGetQueueStats)
	api.GET("/analytics", srv.handleGetAnalytics)

	api.POST("/reports", srv.handleCreateReport)
	api.GET("/reports", srv.handleListOpenReports)
	api.POST("/reports/:id/resolve", srv.handleResolveReport)

	srv.echo = e
	srv.httpd = &http.Server{
		Handler:      e,
		Addr:         config.Bind,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	return srv, nil
}

// Run starts the API, the event fanout loop, and the outbox dispatcher, and
// blocks until the context is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	go s.eventman.Run()

	eg.Go(func() error {
		err := s.dispatcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		s.logger.Info("starting moderation API", "bind", s.httpd.Addr)
		err := s.httpd.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		<-ctx.Done()
		return s.Shutdown()
	})

	return eg.Wait()
}

func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")
	s.eventman.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpd.Shutdown(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	if err := s.db.Exec("SELECT 1").Error; err != nil {
		s.logger.Error("healthcheck can't connect to database", "err", err)
		return c.JSON(http.StatusInternalServerError, HealthStatus{Status: "error", Message: "can't connect to database"})
	}
	return c.JSON(http.StatusOK, HealthStatus{Status: "ok"})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprintf("%v", he.Message)
	}
	if code >= 500 {
		s.logger.Error("HTTP request error", "statusCode", code, "path", c.Path(), "err", err)
	}
	if !c.Response().Committed {
		c.JSON(code, map[string]any{"error": msg})
	}
}

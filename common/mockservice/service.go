package mockservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/config"
	"github.com/kp-forecasting/forecast-client/common/logger"
	limitmw "github.com/kp-forecasting/forecast-client/common/middleware"
	"github.com/kp-forecasting/forecast-client/common/queue"
	"github.com/kp-forecasting/forecast-client/common/ratelimit"
)

// multipartOverhead leaves room for boundaries and form fields on top of the file limit
const multipartOverhead = 64 << 10

// Service is a local stand-in for the forecast service speaking contract v1
type Service struct {
	store     Store
	queue     queue.Queue
	processor *Processor
	limiter   ratelimit.Limiter
	cfg       config.MockConfig
	log       *logger.Logger
}

// New creates the mock service. A positive cfg.RateLimit enables an in-process limiter.
func New(store Store, q queue.Queue, cfg config.MockConfig, log *logger.Logger) *Service {
	s := &Service{
		store:     store,
		queue:     q,
		processor: NewProcessor(store, q, cfg.ProcessingDelay, cfg.FailPrefix, log),
		cfg:       cfg,
		log:       log,
	}
	if cfg.RateLimit > 0 {
		s.limiter = ratelimit.NewMemoryLimiter()
	}
	return s
}

// WithLimiter replaces the rate limiter, e.g. with one shared through Redis
func (s *Service) WithLimiter(l ratelimit.Limiter) *Service {
	s.limiter = l
	return s
}

// Start launches the background processor
func (s *Service) Start(ctx context.Context) error {
	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return s.processor.Start(ctx, workers)
}

// Echo builds the HTTP surface
func (s *Service) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "forecast-mock",
		})
	})

	api := e.Group("", s.checkVersion)
	if s.limiter != nil && s.cfg.RateLimit > 0 {
		api.Use(limitmw.RateLimit(s.limiter, s.cfg.RateLimit, s.cfg.RateWindow))
	}
	api.POST("/upload", s.Upload)
	api.GET("/task-status/:id", s.TaskStatus)
	api.GET("/download/:ref", s.Download)

	return e
}

func errorJSON(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"error": message})
}

// checkVersion rejects requests for a contract version other than v1
func (s *Service) checkVersion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if v := c.Request().Header.Get("X-API-Version"); v != "" && v != clients.APIVersion {
			return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("unsupported API version %q", v))
		}
		return next(c)
	}
}

func (s *Service) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Debug("request handled",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	}
}

// Upload accepts a CSV file for a product
// POST /upload
func (s *Service) Upload(c echo.Context) error {
	req := c.Request()
	limit := s.cfg.MaxUploadBytes + multipartOverhead
	if req.ContentLength > limit {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "File too large")
	}
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, "File too large")
		}
		return errorJSON(c, http.StatusBadRequest, "No file part")
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "File too large")
	}

	productID := strings.TrimSpace(c.FormValue("target_product_id"))
	if productID == "" {
		return errorJSON(c, http.StatusBadRequest, "target_product_id is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "unreadable file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "unreadable file")
	}
	if len(content) == 0 {
		return errorJSON(c, http.StatusBadRequest, "No selected file")
	}

	fileName := filepath.Base(fileHeader.Filename)
	if fileName == "." || fileName == string(filepath.Separator) {
		fileName = "upload.csv"
	}

	ctx := req.Context()
	now := time.Now().UTC()
	task := Task{
		ID:        uuid.NewString(),
		ProductID: productID,
		FileName:  fileName,
		State:     clients.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveTask(ctx, task); err != nil {
		s.log.Error("failed to save task", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to save task")
	}

	payload, err := json.Marshal(uploadMessage{
		TaskID:    task.ID,
		ProductID: productID,
		FileName:  task.FileName,
		Content:   content,
	})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to encode task")
	}

	if err := s.queue.Publish(ctx, UploadTopic, task.ID, payload); err != nil {
		task.State = clients.StateFailed
		task.ErrorDetail = "not queued: " + err.Error()
		task.UpdatedAt = time.Now().UTC()
		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			s.log.Error("failed to mark task failed", "task_id", task.ID, "error", saveErr)
		}
		if errors.Is(err, queue.ErrQueueFull) {
			return errorJSON(c, http.StatusServiceUnavailable, "service busy")
		}
		return errorJSON(c, http.StatusInternalServerError, "failed to queue task")
	}

	s.log.Info("upload accepted",
		"task_id", task.ID,
		"product_id", productID,
		"file_name", task.FileName,
		"size", len(content))

	return c.JSON(http.StatusAccepted, clients.UploadResponse{TaskID: task.ID})
}

// TaskStatus reports the state of a task
// GET /task-status/:id
func (s *Service) TaskStatus(c echo.Context) error {
	task, err := s.store.GetTask(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Task not found")
	}
	if err != nil {
		s.log.Error("failed to load task", "task_id", c.Param("id"), "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load task")
	}

	resp := clients.StatusResponse{
		TaskID: task.ID,
		State:  string(task.State),
	}
	switch task.State {
	case clients.StateCompleted:
		resp.ResultReference = task.ResultReference
	case clients.StateFailed:
		resp.ErrorDetail = task.ErrorDetail
	}
	return c.JSON(http.StatusOK, resp)
}

// Download serves a processed artifact
// GET /download/:ref
func (s *Service) Download(c echo.Context) error {
	artifact, err := s.store.GetArtifact(c.Request().Context(), c.Param("ref"))
	if errors.Is(err, ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "File not found")
	}
	if err != nil {
		s.log.Error("failed to load artifact", "reference", c.Param("ref"), "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load artifact")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, artifact.FileName))
	return c.Blob(http.StatusOK, artifact.ContentType, artifact.Data)
}

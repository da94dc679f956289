package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/z-wentao/tubenotes/pkg/analysis"
	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/output"
	"github.com/z-wentao/tubenotes/pkg/queue"
	"github.com/z-wentao/tubenotes/pkg/storage"
	"github.com/z-wentao/tubenotes/pkg/summarizer"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

type Pipeline interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	Transcript(ctx context.Context, rawURL string) (*analysis.TranscriptReport, error)
}

// apiStatus is what /api/health reports about configured credentials.
type apiStatus struct {
	YouTube    bool
	OpenRouter bool
	Apify      bool
	Prompts    []string
	// Chain lists the transcript strategies in the order they run.
	Chain []string
}

// App holds the dependencies shared by every handler.
type App struct {
	pipeline Pipeline
	store    storage.Store
	queue    queue.Queue
	files    *output.Writer
	saver    output.FolderSaver
	status   apiStatus
	logger   *slog.Logger
}

func (app *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), app.requestLogger())

	api := r.Group("/api")
	{
		api.GET("/health", app.handleHealth)
		api.POST("/process", app.handleProcess)
		api.GET("/transcript/:video_id", app.handleTranscript)
		api.GET("/download/:filename", app.handleDownload)
		api.POST("/download/save", app.handleSaveToFolder)

		api.POST("/jobs", app.handleCreateJob)
		api.GET("/jobs", app.handleListJobs)
		api.GET("/jobs/:job_id", app.handleGetJob)
		api.DELETE("/jobs/:job_id", app.handleDeleteJob)
	}
	return r
}

func (app *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

func (app *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"youtubeApi":      app.status.YouTube,
		"openrouterApi":   app.status.OpenRouter,
		"apifyApi":        app.status.Apify,
		"prompts":         app.status.Prompts,
		"transcriptChain": app.status.Chain,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ProcessRequest is the body of /api/process and /api/jobs.
type ProcessRequest struct {
	URL       string `json:"url"`
	Model     string `json:"model"`
	PromptID  string `json:"prompt_id"`
	MaxTokens int    `json:"max_tokens"`
}

func (app *App) handleProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "YouTube URL is required"})
		return
	}

	res, err := app.pipeline.Analyze(c.Request.Context(), analysis.Request{
		URL:       req.URL,
		Model:     req.Model,
		PromptID:  req.PromptID,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		app.logger.Error("process video failed", slog.String("url", req.URL), slog.Any("error", err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*analysis.Result
	}{true, res})
}

func (app *App) handleTranscript(c *gin.Context) {
	rep, err := app.pipeline.Transcript(c.Request.Context(), c.Param("video_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (app *App) handleDownload(c *gin.Context) {
	name := c.Param("filename")
	path, err := app.files.Lookup(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	c.FileAttachment(path, name)
}

func (app *App) handleSaveToFolder(c *gin.Context) {
	var req output.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folderPath and filename are required"})
		return
	}

	res, err := app.saver.Save(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if res.Success {
		app.logger.Info("saved markdown to folder", slog.String("path", res.FilePath))
	}
	c.JSON(http.StatusOK, res)
}

func (app *App) handleCreateJob(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	videoID, ok := youtube.ExtractVideoID(req.URL)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid YouTube URL"})
		return
	}

	job := &models.AnalysisJob{
		JobID:     uuid.NewString(),
		VideoURL:  req.URL,
		VideoID:   videoID,
		Model:     req.Model,
		PromptID:  req.PromptID,
		MaxTokens: req.MaxTokens,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}

	ctx := c.Request.Context()
	if err := app.store.Save(ctx, job); err != nil {
		app.logger.Error("save job failed", slog.String("job_id", job.JobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save job"})
		return
	}
	if err := app.queue.Enqueue(ctx, job); err != nil {
		app.logger.Error("enqueue job failed", slog.String("job_id", job.JobID), slog.Any("error", err))
		uerr := app.store.Update(ctx, job.JobID, func(j *models.AnalysisJob) {
			j.Status = models.StatusFailed
			j.Error = err.Error()
			j.CompletedAt = time.Now()
		})
		if uerr != nil {
			app.logger.Warn("mark unqueued job failed", slog.String("job_id", job.JobID), slog.Any("error", uerr))
		}
		c.JSON(statusFor(err), gin.H{"error": "could not queue job: " + err.Error()})
		return
	}

	app.logger.Info("job queued", slog.String("job_id", job.JobID), slog.String("video_id", videoID))
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   job.JobID,
		"video_id": videoID,
		"status":   job.Status,
	})
}

func (app *App) handleGetJob(c *gin.Context) {
	job, err := app.store.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (app *App) handleListJobs(c *gin.Context) {
	jobs, err := app.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

func (app *App) handleDeleteJob(c *gin.Context) {
	if err := app.store.Delete(c.Request.Context(), c.Param("job_id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// statusFor maps pipeline and storage errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidURL),
		errors.Is(err, summarizer.ErrUnknownPrompt),
		errors.Is(err, output.ErrInvalidPath),
		errors.Is(err, output.ErrInvalidName),
		errors.Is(err, output.ErrNotDirectory):
		return http.StatusBadRequest
	case errors.Is(err, youtube.ErrVideoNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, output.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, youtube.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, youtube.ErrMissingAPIKey),
		errors.Is(err, summarizer.ErrMissingAPIKey),
		errors.Is(err, queue.ErrFull),
		errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/retry"
)

const (
	BaseURL       = "https://api.apify.com/v2"
	DefaultTaskID = "dsuth10~test-youtube-structured-transcript-extractor-task"
)

var (
	ErrMissingToken = errors.New("apify token not configured")
	ErrNoTranscript = errors.New("no transcript data in apify dataset")
	ErrRunFailed    = errors.New("apify run did not succeed")
)

// Run statuses reported by the platform.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
	StatusTimedOut  = "TIMED-OUT"
)

// Config for the Apify client.
type Config struct {
	Token  string
	TaskID string
	// BaseURL overrides the public API root.
	BaseURL string
	// PollInterval is the minimum gap between run status requests.
	PollInterval time.Duration
	// WaitTimeout caps how long a single run may take end to end.
	WaitTimeout time.Duration
	// WaitForFinish is the server side long-poll per status request, in seconds.
	WaitForFinish int
	HTTPClient    *http.Client
}

// Client runs a saved Apify task that scrapes a YouTube transcript and
// reads the result back from the run's default dataset.
type Client struct {
	token         string
	taskID        string
	baseURL       string
	waitTimeout   time.Duration
	waitForFinish int
	limiter       *rate.Limiter
	httpClient    *http.Client
	retry         retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.TaskID == "" {
		cfg.TaskID = DefaultTaskID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		token:         cfg.Token,
		taskID:        cfg.TaskID,
		baseURL:       cfg.BaseURL,
		waitTimeout:   cfg.WaitTimeout,
		waitForFinish: cfg.WaitForFinish,
		limiter:       rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		httpClient:    cfg.HTTPClient,
		retry:         retry.Default,
	}
}

// Configured reports whether a token is set. Without one the client makes
// no requests at all.
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// Run is the subset of the run object we use.
type Run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	StatusMessage    string `json:"statusMessage"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}

type runEnvelope struct {
	Data Run `json:"data"`
}

// Item is one dataset record produced by the transcript task.
type Item struct {
	URL        string     `json:"url,omitempty"`
	Title      string     `json:"title,omitempty"`
	Transcript Transcript `json:"transcript"`
}

type runInput struct {
	StartURLs []startURL `json:"start_urls"`
}

type startURL struct {
	URL string `json:"url"`
}

// StartRun starts the saved task for one video URL.
func (c *Client) StartRun(ctx context.Context, videoURL string) (*Run, error) {
	if !c.Configured() {
		return nil, ErrMissingToken
	}
	body, err := json.Marshal(runInput{StartURLs: []startURL{{URL: videoURL}}})
	if err != nil {
		return nil, fmt.Errorf("encode run input: %w", err)
	}

	var env runEnvelope
	endpoint := fmt.Sprintf("%s/actor-tasks/%s/runs", c.baseURL, url.PathEscape(c.taskID))
	if err := c.do(ctx, http.MethodPost, endpoint, body, &env); err != nil {
		return nil, fmt.Errorf("start task run: %w", err)
	}
	return &env.Data, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	if !c.Configured() {
		return nil, ErrMissingToken
	}
	endpoint := fmt.Sprintf("%s/actor-runs/%s", c.baseURL, url.PathEscape(runID))
	if c.waitForFinish > 0 {
		endpoint += fmt.Sprintf("?waitForFinish=%d", c.waitForFinish)
	}

	var env runEnvelope
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &env); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &env.Data, nil
}

// WaitForRun polls until the run finishes, the context ends or the wait
// timeout passes. Polls are spaced by the client's rate limiter.
func (c *Client) WaitForRun(ctx context.Context, run *Run) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	for !run.Finished() {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for run %s: %w", run.ID, err)
		}
		next, err := c.GetRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run = next
	}

	if run.Status != StatusSucceeded {
		return run, fmt.Errorf("%w: run %s is %s %s", ErrRunFailed, run.ID, run.Status, run.StatusMessage)
	}
	return run, nil
}

// DatasetItems lists every item in a dataset.
func (c *Client) DatasetItems(ctx context.Context, datasetID string) ([]Item, error) {
	if !c.Configured() {
		return nil, ErrMissingToken
	}
	endpoint := fmt.Sprintf("%s/datasets/%s/items?format=json&clean=true", c.baseURL, url.PathEscape(datasetID))

	var items []Item
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, fmt.Errorf("list dataset %s: %w", datasetID, err)
	}
	return items, nil
}

// FetchTranscript runs the task for videoURL and returns the first item's
// transcript as segments.
func (c *Client) FetchTranscript(ctx context.Context, videoURL string) ([]models.Segment, error) {
	run, err := c.StartRun(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	slog.Info("apify run started", slog.String("run_id", run.ID), slog.String("status", run.Status))

	run, err = c.WaitForRun(ctx, run)
	if err != nil {
		return nil, err
	}

	items, err := c.DatasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoTranscript
	}

	segments := items[0].Transcript.Normalize()
	if len(segments) == 0 {
		return nil, ErrNoTranscript
	}
	return segments, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	policy := c.retry
	if method != http.MethodGet {
		// a retried POST could start a second paid run
		policy = retry.None
	}
	resp, err := retry.HTTP(ctx, policy, func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > 256 {
			data = data[:256]
		}
		return fmt.Errorf("apify returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

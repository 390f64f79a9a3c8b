package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

const defaultUploadName = "upload.csv"

// ForecastClient handles communication with the remote forecast service:
// Submit uploads a file, AwaitCompletion polls its task, Fetch retrieves the artifact.
// It holds no per-task state and is safe for concurrent use.
type ForecastClient struct {
	cfg      Config
	http     *HTTPClient
	logger   Logger
	recorder Recorder
}

// Option configures a ForecastClient
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	logger     Logger
	recorder   Recorder
}

// WithHTTPClient sets the underlying http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithLogger sets the logger used for debug breadcrumbs
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRecorder sets the measurement sink
func WithRecorder(recorder Recorder) Option {
	return func(o *clientOptions) {
		o.recorder = recorder
	}
}

// NewForecastClient creates a new forecast client.
// The http.Client carries no global timeout; each call applies its own from cfg.
func NewForecastClient(cfg Config, opts ...Option) (*ForecastClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = nopLogger{}
	}
	if options.recorder == nil {
		options.recorder = nopRecorder{}
	}

	return &ForecastClient{
		cfg:      cfg,
		http:     NewHTTPClient(options.httpClient, options.logger),
		logger:   options.logger,
		recorder: options.recorder,
	}, nil
}

// Config returns the client's configuration
func (c *ForecastClient) Config() Config {
	return c.cfg
}

// Submit uploads the file and returns the handle of the task the service created
func (c *ForecastClient) Submit(ctx context.Context, req UploadRequest) (TaskHandle, error) {
	if len(req.FileContent) == 0 {
		return TaskHandle{}, newInvalidRequest(OpSubmit, "", "file content is empty")
	}
	if strings.TrimSpace(req.TargetProductID) == "" {
		return TaskHandle{}, newInvalidRequest(OpSubmit, "", "target product id is required")
	}

	body, contentType, err := encodeUpload(req)
	if err != nil {
		return TaskHandle{}, newInvalidRequest(OpSubmit, "", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	c.logger.Debug("submitting upload",
		"file_name", req.FileName,
		"product_id", req.TargetProductID,
		"size", len(req.FileContent))

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.DoRequest(ctx, http.MethodPost, c.cfg.endpoint("upload"), body, header)
	if err != nil {
		c.recorder.ObserveRequest(OpSubmit, 0, time.Since(start))
		return TaskHandle{}, newTransportError(OpSubmit, "", fmt.Errorf("failed to send upload: %w", err), true)
	}
	defer drainAndClose(resp.Body)

	data, readErr := readAllWithLimit(resp.Body, maxJSONBodyBytes)
	c.recorder.ObserveRequest(OpSubmit, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if readErr != nil {
			data = nil
		}
		return TaskHandle{}, newStatusError(OpSubmit, "", resp.StatusCode, truncate(data))
	}
	if readErr != nil {
		if IsResponseTooLarge(readErr) {
			return TaskHandle{}, newInvalidResponse(OpSubmit, "", resp.StatusCode, nil, readErr)
		}
		return TaskHandle{}, newTransportError(OpSubmit, "", fmt.Errorf("failed to read upload response: %w", readErr), true)
	}

	var uploaded UploadResponse
	if err := json.Unmarshal(data, &uploaded); err != nil {
		return TaskHandle{}, newInvalidResponse(OpSubmit, "", resp.StatusCode, truncate(data), fmt.Errorf("failed to decode upload response: %w", err))
	}
	taskID := strings.TrimSpace(uploaded.TaskID)
	if taskID == "" {
		return TaskHandle{}, newInvalidResponse(OpSubmit, "", resp.StatusCode, truncate(data), fmt.Errorf("upload response has no task id"))
	}

	c.logger.Debug("upload accepted", "task_id", taskID, "status", resp.StatusCode)

	return TaskHandle{TaskID: taskID}, nil
}

// encodeUpload builds the multipart body: a "file" part and a "target_product_id" field
func encodeUpload(req UploadRequest) (*bytes.Buffer, string, error) {
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = defaultUploadName
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(name))))
	partHeader.Set("Content-Type", uploadContentType(name))

	part, err := w.CreatePart(partHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(req.FileContent); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.WriteField("target_product_id", req.TargetProductID); err != nil {
		return nil, "", fmt.Errorf("failed to write product field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func uploadContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return "text/csv"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// truncate keeps error bodies bounded
func truncate(data []byte) []byte {
	if len(data) > maxErrorBodyBytes {
		return data[:maxErrorBodyBytes]
	}
	return data
}

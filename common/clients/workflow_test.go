package clients

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService serves the three endpoints with a scripted status sequence
type fakeService struct {
	uploads   atomic.Int32
	polls     atomic.Int32
	downloads atomic.Int32
}

func newFakeService(t *testing.T, statuses []string, artifact []byte) (*fakeService, string) {
	t.Helper()
	fs := &fakeService{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		fs.uploads.Add(1)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "P1", r.FormValue("target_product_id"))
		jsonReply(http.StatusAccepted, `{"task_id":"T1"}`)(w, r)
	})
	mux.HandleFunc("GET /task-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := int(fs.polls.Add(1))
		if n > len(statuses) {
			n = len(statuses)
		}
		jsonReply(http.StatusOK, statuses[n-1])(w, r)
	})
	mux.HandleFunc("GET /download/{ref}", func(w http.ResponseWriter, r *http.Request) {
		fs.downloads.Add(1)
		if r.PathValue("ref") != "R1" {
			jsonReply(http.StatusNotFound, `{"error":"File not found"}`)(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(artifact)
	})

	server := newScriptedServer(t, mux.ServeHTTP)
	return fs, server.URL
}

func TestRun_CompletesAndDownloads(t *testing.T) {
	artifact := []byte("date,forecast\n2024-02-01,12.5\n")
	fs, baseURL := newFakeService(t, []string{
		`{"task_id":"T1","state":"pending"}`,
		`{"task_id":"T1","state":"running"}`,
		`{"task_id":"T1","state":"completed","result_reference":"R1"}`,
	}, artifact)
	client := newTestClient(t, baseURL)

	result, err := client.Run(context.Background(), UploadRequest{
		FileContent:     []byte("date,qty\n"),
		FileName:        "a.csv",
		TargetProductID: "P1",
	}, fastPolicy())
	require.NoError(t, err)

	assert.Equal(t, "T1", result.Handle.TaskID)
	assert.Equal(t, StateCompleted, result.Status.State)
	assert.Equal(t, "R1", result.Status.ResultReference)
	assert.Equal(t, artifact, result.Artifact.Bytes)
	assert.Equal(t, "text/csv", result.Artifact.MimeType)

	assert.Equal(t, int32(1), fs.uploads.Load())
	assert.Equal(t, int32(3), fs.polls.Load())
	assert.Equal(t, int32(1), fs.downloads.Load())
}

func TestRun_FailedTaskSkipsDownload(t *testing.T) {
	fs, baseURL := newFakeService(t, []string{
		`{"task_id":"T1","state":"running"}`,
		`{"task_id":"T1","state":"failed","error_detail":"bad column"}`,
	}, nil)
	client := newTestClient(t, baseURL)

	result, err := client.Run(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		FileName:        "a.csv",
		TargetProductID: "P1",
	}, fastPolicy())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFailed))
	assert.Equal(t, "T1", result.Handle.TaskID)
	assert.Equal(t, "bad column", result.Status.ErrorDetail)
	assert.Equal(t, int32(0), fs.downloads.Load())
}

func TestRun_PendingForeverTimesOut(t *testing.T) {
	fs, baseURL := newFakeService(t, []string{`{"task_id":"T1","state":"pending"}`}, nil)
	client := newTestClient(t, baseURL)

	policy := PollPolicy{Interval: time.Millisecond, Multiplier: 1, MaxAttempts: 3}
	result, err := client.Run(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		TargetProductID: "P1",
	}, policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Equal(t, StatePending, result.Status.State)
	assert.Equal(t, int32(3), fs.polls.Load())
	assert.Equal(t, int32(0), fs.downloads.Load())
}

func TestRun_InvalidPolicyMakesNoCall(t *testing.T) {
	fs, baseURL := newFakeService(t, []string{`{"task_id":"T1","state":"pending"}`}, nil)
	client := newTestClient(t, baseURL)

	_, err := client.Run(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		TargetProductID: "P1",
	}, PollPolicy{Interval: time.Millisecond})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, int32(0), fs.uploads.Load())
}

package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewForecastClient_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty base url", DefaultConfig("")},
		{"unsupported scheme", DefaultConfig("ftp://example.com")},
		{"missing host", DefaultConfig("http://")},
		{"zero timeout", func() Config {
			cfg := DefaultConfig("http://localhost:8000")
			cfg.StatusTimeout = 0
			return cfg
		}()},
		{"bad retry", func() Config {
			cfg := DefaultConfig("http://localhost:8000")
			cfg.Retry.Jitter = 2
			return cfg
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewForecastClient(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestSubmit_SendsMultipartUpload(t *testing.T) {
	var (
		gotName    string
		gotType    string
		gotContent string
		gotProduct string
		gotVersion string
		gotReqID   string
	)

	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotContent = string(data)
		gotProduct = r.FormValue("target_product_id")
		gotVersion = r.Header.Get("X-API-Version")
		gotReqID = r.Header.Get("X-Request-ID")

		jsonReply(http.StatusAccepted, `{"task_id":"T1"}`)(w, r)
	})

	client := newTestClient(t, server.URL)
	ctx := WithRequestID(context.Background(), "req-42")

	handle, err := client.Submit(ctx, UploadRequest{
		FileContent:     []byte("date,qty\n2024-01-01,3\n"),
		FileName:        "a.csv",
		TargetProductID: "P1",
	})
	require.NoError(t, err)

	assert.Equal(t, TaskHandle{TaskID: "T1"}, handle)
	assert.Equal(t, 1, server.Calls())
	assert.Equal(t, "a.csv", gotName)
	assert.Equal(t, "text/csv", gotType)
	assert.Equal(t, "date,qty\n2024-01-01,3\n", gotContent)
	assert.Equal(t, "P1", gotProduct)
	assert.Equal(t, APIVersion, gotVersion)
	assert.Equal(t, "req-42", gotReqID)
}

func TestSubmit_DefaultsFileNameAndGeneratesRequestID(t *testing.T) {
	var gotName, gotReqID string
	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotName = header.Filename
		gotReqID = r.Header.Get("X-Request-ID")
		jsonReply(http.StatusOK, `{"task_id":"T9"}`)(w, r)
	})

	client := newTestClient(t, server.URL)
	handle, err := client.Submit(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		TargetProductID: "P1",
	})
	require.NoError(t, err)

	assert.Equal(t, "T9", handle.TaskID)
	assert.Equal(t, defaultUploadName, gotName)
	assert.NotEmpty(t, gotReqID)
}

func TestSubmit_InvalidRequestMakesNoCall(t *testing.T) {
	server := newScriptedServer(t, jsonReply(http.StatusOK, `{"task_id":"T1"}`))
	client := newTestClient(t, server.URL)

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"empty content", UploadRequest{FileName: "a.csv", TargetProductID: "P1"}},
		{"blank product", UploadRequest{FileContent: []byte("x"), FileName: "a.csv", TargetProductID: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
	assert.Equal(t, 0, server.Calls())
}

func TestSubmit_ResponseErrors(t *testing.T) {
	tests := []struct {
		name       string
		reply      http.HandlerFunc
		wantKind   Kind
		wantStatus int
		wantBody   string
	}{
		{
			name:       "server error",
			reply:      jsonReply(http.StatusInternalServerError, `{"error":"boom"}`),
			wantKind:   KindTransport,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"boom"}`,
		},
		{
			name:       "payload too large",
			reply:      jsonReply(http.StatusRequestEntityTooLarge, `{"error":"File too large"}`),
			wantKind:   KindTransport,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"error":"File too large"}`,
		},
		{
			name:       "missing task id",
			reply:      jsonReply(http.StatusOK, `{"status":"queued"}`),
			wantKind:   KindInvalidResponse,
			wantStatus: http.StatusOK,
		},
		{
			name:       "not json",
			reply:      jsonReply(http.StatusOK, `<html>ok</html>`),
			wantKind:   KindInvalidResponse,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newScriptedServer(t, tt.reply)
			client := newTestClient(t, server.URL)

			_, err := client.Submit(context.Background(), UploadRequest{
				FileContent:     []byte("x"),
				FileName:        "a.csv",
				TargetProductID: "P1",
			})
			require.Error(t, err)

			var clientErr *Error
			require.True(t, errors.As(err, &clientErr))
			assert.Equal(t, tt.wantKind, clientErr.Kind)
			assert.Equal(t, OpSubmit, clientErr.Op)
			assert.Equal(t, tt.wantStatus, clientErr.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, clientErr.Body)
			}
			assert.Equal(t, 1, server.Calls())
		})
	}
}

func TestSubmit_UnreachableService(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL)
	_, err := client.Submit(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		TargetProductID: "P1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, IsTemporary(err))
}

func TestSubmit_UploadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.UploadTimeout = 20 * time.Millisecond
	client, err := NewForecastClient(cfg)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), UploadRequest{
		FileContent:     []byte("x"),
		TargetProductID: "P1",
	})
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

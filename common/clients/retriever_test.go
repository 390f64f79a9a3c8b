package clients

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ReturnsExactBytes(t *testing.T) {
	payload := []byte("date,forecast\n2024-02-01,12.5\n\x00\xff")
	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/download/R1", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="P1_forecast.csv"`)
		_, _ = w.Write(payload)
	})
	client := newTestClient(t, server.URL)

	artifact, err := client.Fetch(context.Background(), "R1")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, artifact.Bytes))
	assert.Equal(t, "P1_forecast.csv", artifact.FileName)
	assert.Equal(t, "text/csv", artifact.MimeType)
}

func TestFetch_FallsBackToReferenceAndOctetStream(t *testing.T) {
	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte{1, 2, 3})
	})
	client := newTestClient(t, server.URL)

	artifact, err := client.Fetch(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", artifact.FileName)
	assert.Equal(t, defaultArtifactMime, artifact.MimeType)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		reply    http.HandlerFunc
		wantKind Kind
		wantCode int
	}{
		{"stale reference", jsonReply(http.StatusNotFound, `{"error":"File not found"}`), KindNotFound, http.StatusNotFound},
		{"server error", jsonReply(http.StatusInternalServerError, `boom`), KindTransport, http.StatusInternalServerError},
		{"forbidden", jsonReply(http.StatusForbidden, `no`), KindTransport, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newScriptedServer(t, tt.reply)
			client := newTestClient(t, server.URL)

			_, err := client.Fetch(context.Background(), "R1")
			require.Error(t, err)

			var clientErr *Error
			require.True(t, errors.As(err, &clientErr))
			assert.Equal(t, tt.wantKind, clientErr.Kind)
			assert.Equal(t, tt.wantCode, clientErr.StatusCode)
			assert.Equal(t, "R1", clientErr.Reference)
			assert.Equal(t, 1, server.Calls(), "downloads are not retried")
		})
	}
}

func TestFetch_ArtifactTooLarge(t *testing.T) {
	server := newScriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	})

	cfg := testConfig(server.URL)
	cfg.MaxArtifactBytes = 1024
	client, err := NewForecastClient(cfg)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "R1")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, IsResponseTooLarge(err))
}

func TestFetch_EmptyReference(t *testing.T) {
	server := newScriptedServer(t, jsonReply(http.StatusOK, ``))
	client := newTestClient(t, server.URL)

	_, err := client.Fetch(context.Background(), " ")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, 0, server.Calls())
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "out.csv", artifactName(`attachment; filename="out.csv"`, "R1"))
	assert.Equal(t, "out.csv", artifactName(`attachment; filename="../../out.csv"`, "R1"))
	assert.Equal(t, "R1", artifactName(`attachment`, "R1"))
	assert.Equal(t, "R1", artifactName(`;;;`, "R1"))
	assert.Equal(t, "R1", artifactName("", "R1"))
}

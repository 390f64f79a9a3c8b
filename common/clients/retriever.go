package clients

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultArtifactMime = "application/octet-stream"

// Fetch downloads the artifact behind a result reference. It does not retry.
func (c *ForecastClient) Fetch(ctx context.Context, reference string) (Artifact, error) {
	if strings.TrimSpace(reference) == "" {
		return Artifact{}, newInvalidRequest(OpFetch, "", "result reference is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Accept", defaultArtifactMime)

	start := time.Now()
	resp, err := c.http.DoRequest(ctx, http.MethodGet, c.cfg.endpoint("download", url.PathEscape(reference)), nil, header)
	if err != nil {
		c.recorder.ObserveRequest(OpFetch, 0, time.Since(start))
		return Artifact{}, withReference(newTransportError(OpFetch, "", fmt.Errorf("failed to download artifact: %w", err), false), reference)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readErrorBody(resp.Body)
		c.recorder.ObserveRequest(OpFetch, resp.StatusCode, time.Since(start))
		if resp.StatusCode == http.StatusNotFound {
			return Artifact{}, withReference(newNotFound(OpFetch, "", body), reference)
		}
		return Artifact{}, withReference(newStatusError(OpFetch, "", resp.StatusCode, body), reference)
	}

	data, err := readAllWithLimit(resp.Body, c.cfg.MaxArtifactBytes)
	c.recorder.ObserveRequest(OpFetch, resp.StatusCode, time.Since(start))
	if err != nil {
		return Artifact{}, withReference(newTransportError(OpFetch, "", fmt.Errorf("failed to read artifact: %w", err), false), reference)
	}

	artifact := Artifact{
		FileName: artifactName(resp.Header.Get("Content-Disposition"), reference),
		Bytes:    data,
		MimeType: artifactMime(resp.Header.Get("Content-Type")),
	}

	c.logger.Debug("artifact downloaded",
		"reference", reference,
		"file_name", artifact.FileName,
		"size", len(data))

	return artifact, nil
}

func withReference(err *Error, reference string) *Error {
	err.Reference = reference
	return err
}

// artifactName prefers the Content-Disposition filename and falls back to the reference
func artifactName(disposition, reference string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := path.Base(strings.ReplaceAll(params["filename"], `\`, "/")); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}
	return path.Base(reference)
}

func artifactMime(contentType string) string {
	if contentType == "" {
		return defaultArtifactMime
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return defaultArtifactMime
	}
	return mediaType
}

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
	requestTimeout = 60 * time.Second
)

// Uploader posts finished recordings to the analyze endpoint. A failed
// upload never loses the recording; the file already exists locally.
type Uploader struct {
	url    string
	client *http.Client
}

// New creates an uploader for the given endpoint URL.
func New(url string) *Uploader {
	return &Uploader{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Upload posts the WAV as multipart field "file", tagged with the session
// ID for correlation. Retries transient failures with exponential backoff.
// Returns the transcript from the response body, if any.
func (u *Uploader) Upload(ctx context.Context, sessionID, filename string, wavData []byte) (string, error) {
	body, contentType, err := buildMultipart(filename, wavData)
	if err != nil {
		return "", fmt.Errorf("failed to build upload body: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		transcript, err := u.post(ctx, sessionID, contentType, body)
		if err == nil {
			log.Info().
				Str("session_id", sessionID).
				Str("url", u.url).
				Int("size_bytes", len(wavData)).
				Int("attempt", attempt).
				Msg("Recording uploaded")
			return transcript, nil
		}
		lastErr = err

		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Int("attempt", attempt).
			Msg("Upload attempt failed")

		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			}
			backoff *= 2
		}
	}

	return "", fmt.Errorf("upload failed after %d attempts: %w", maxAttempts, lastErr)
}

func (u *Uploader) post(ctx context.Context, sessionID, contentType string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Correlation-ID", sessionID)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("analyze endpoint returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Endpoints that return nothing useful are still a success.
		return "", nil
	}
	return result.Transcript, nil
}

func buildMultipart(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

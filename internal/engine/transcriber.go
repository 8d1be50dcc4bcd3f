package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// Transcriber converts audio/video payloads into raw transcript text via an
// OpenAI-compatible audio/transcriptions endpoint.
type Transcriber struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTranscriber creates a new Transcriber
func NewTranscriber(config *Config, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		config:     config,
		httpClient: newHTTPClient(config),
		logger:     logger,
	}
}

// Transcribe sends the media payload for transcription and returns the
// plain transcript text. Errors carry the transient/permanent taxonomy.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, media []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := part.Write(media); err != nil {
		return "", fmt.Errorf("failed to write media payload: %w", err)
	}

	if err := writer.WriteField("model", t.config.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("failed to write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	url := strings.TrimRight(t.config.APIURL, "/") + "/audio/transcriptions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	t.logger.Debug("Sending transcription request",
		slog.String("filename", filename),
		slog.Int("payload_size", len(media)),
		slog.String("model", t.config.Model),
	)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	transcript := strings.TrimSpace(string(respBody))

	t.logger.Info("Transcription completed",
		slog.String("filename", filename),
		slog.Int("transcript_chars", len(transcript)),
	)

	return transcript, nil
}

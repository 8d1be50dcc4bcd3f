package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxSummaryInput caps transcript size sent for summarization to keep
// token usage reasonable.
const maxSummaryInput = 4000

const summarySystemPrompt = `You write clear, skimmable English summaries.
Output Markdown with the following sections only:
1) **Summary** (1-2 sentences)
2) **Key Details** (3-6 bullets, full phrases)
3) **Takeaways** (2-3 bullets)
Rules:
- Total length: 300-350 words.`

// Summarizer produces a short structured summary from a transcript via an
// OpenAI-compatible chat/completions endpoint.
type Summarizer struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSummarizer creates a new Summarizer
func NewSummarizer(config *Config, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		config:     config,
		httpClient: newHTTPClient(config),
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize generates a structured summary for the transcript. Empty input
// yields an empty summary without an API call.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return "", nil
	}

	if len(text) > maxSummaryInput {
		// Back up to a rune boundary so the cut never ships a split
		// multi-byte character.
		cut := maxSummaryInput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	reqBody := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Summarize the following:\n\n" + text},
		},
		MaxTokens: 2000,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary request: %w", err)
	}

	url := strings.TrimRight(s.config.APIURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	s.logger.Debug("Sending summary request",
		slog.Int("transcript_chars", len(text)),
		slog.String("model", s.config.Model),
	)

	resp, err := s.httpClient.Do(req)
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

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse summary response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summary response contained no choices")
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)

	s.logger.Info("Summary generated",
		slog.Int("summary_chars", len(summary)),
	)

	return summary, nil
}

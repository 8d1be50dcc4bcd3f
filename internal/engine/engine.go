// Package engine wraps the transcription and summarization services. Both
// speak OpenAI-compatible HTTP APIs; the pipeline only cares about bytes in,
// text out, and whether a failure is worth retrying.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/trannm/mediascribe/internal/domain"
)

// Config holds one engine endpoint
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func newHTTPClient(cfg *Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// classifyHTTPStatus maps an engine response code onto the retry taxonomy.
// Rate limits and server-side errors are transient; everything else in the
// 4xx range means the input itself is unacceptable.
func classifyHTTPStatus(status int, body string) error {
	err := fmt.Errorf("engine returned %d: %s", status, body)

	if status == http.StatusTooManyRequests || status >= 500 {
		return domain.NewTransientError(err)
	}

	return err
}

// classifyTransportError marks network-level failures (timeouts, resets,
// DNS) as transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError(err)
	}
	// http.Client wraps url.Error around everything; treat unknown
	// transport failures as transient too, the request never got a verdict
	return domain.NewTransientError(err)
}

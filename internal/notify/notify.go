// Package notify posts plain-text messages to an ntfy-style endpoint. The
// agent uses it to announce scan completion when an endpoint is configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ScanFinishedMessage formats the completion text for a scan run.
func ScanFinishedMessage(startURL string, pages, found, added int, scanErr string) string {
	msg := fmt.Sprintf("Scan of %s finished: %d pages, %d symbols found, %d added", startURL, pages, found, added)
	if scanErr != "" {
		msg += " (stopped early: " + scanErr + ")"
	}
	return msg
}

// Send posts a message to the endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("notify endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Package collector implements the outbound source adapters that discover
// benchmark candidates.
package collector

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// userAgent identifies the pipeline to upstream APIs.
const userAgent = "BenchScope/1.0"

// maxBodyBytes caps response bodies so a misbehaving upstream cannot blow up
// memory.
const maxBodyBytes = 10 << 20

// readBody drains and closes an HTTP response body.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// decodeJSON reads the body and unmarshals it into dest.
func decodeJSON(resp *http.Response, dest any) error {
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

// checkStatus converts a non-2xx response into an error, draining the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := readBody(resp)
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
}

// collapseWhitespace folds runs of whitespace (including newlines) into
// single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate limits s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// timePtr returns a pointer to t, or nil for the zero time.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the provider clients and
// the literature client.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// snippetLimit bounds how much of an error body is kept for diagnostics.
const snippetLimit = 512

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the response status may succeed on retry:
// 408, 425, 429 and every 5xx.
func Retryable(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// drained and a bounded snippet kept; the caller still closes it.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: Snippet(resp.Body)}
}

// Snippet reads at most snippetLimit bytes of r, discards the rest and
// returns the text with surrounding whitespace removed.
func Snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, snippetLimit))
	io.Copy(io.Discard, r)
	return strings.TrimSpace(string(data))
}

package graph

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sheetrelay/internal/errors"
)

// StatusError is a non-success response from the Graph API
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph %s %s: http %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph %s %s: http %d", e.Method, e.Path, e.StatusCode)
}

// StatusOf returns the HTTP status carried by err, or 0 when err did not
// come from a Graph response.
func StatusOf(err error) int {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func retryAfterOf(err error) time.Duration {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

func errorCodeOf(err error) string {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// codeForStatus maps a response status onto the relay's error taxonomy.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return errors.CodeNotFound
	case http.StatusConflict, http.StatusLocked:
		return errors.CodeConflictOrLocked
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return errors.CodeThrottled
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CodeAuth
	default:
		return errors.CodeExternalService
	}
}

func newStatusError(method, path string, resp *response) error {
	se := &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.status,
		Code:       gjson.GetBytes(resp.body, "error.code").String(),
		Message:    gjson.GetBytes(resp.body, "error.message").String(),
		RetryAfter: parseRetryAfter(resp.header.Get("Retry-After")),
	}
	return &errors.AppError{
		Code:    codeForStatus(resp.status),
		Message: fmt.Sprintf("graph request %s %s failed", method, path),
		Cause:   se,
	}
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goforj/rescache/value"
	apierrors "github.com/jmgilman/go/errors"
)

// FieldError is one entry of a validation error body.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string { return f.Field + ": " + f.Message }

// Error is a non-2xx response.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	StatusText string
	// Detail is the body's "detail" member, when present.
	Detail string
	// Fields lists the body's members in the order the server sent them.
	Fields []FieldError
	Body   []byte
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("transport: %s %s: HTTP %d - %s", e.Method, e.URL, e.StatusCode, e.StatusText)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Code classifies the status.
func (e *Error) Code() apierrors.ErrorCode {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return apierrors.CodeNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return apierrors.CodeUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return apierrors.CodeForbidden
	case e.StatusCode == http.StatusConflict:
		return apierrors.CodeConflict
	case e.StatusCode == http.StatusTooManyRequests:
		return apierrors.CodeRateLimit
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusGatewayTimeout:
		return apierrors.CodeTimeout
	case e.StatusCode == http.StatusServiceUnavailable, e.StatusCode == http.StatusBadGateway:
		return apierrors.CodeUnavailable
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return apierrors.CodeInvalidInput
	}
	return apierrors.CodeInternal
}

func newError(method, url string, status int, statusLine string, body []byte) *Error {
	e := &Error{
		Method:     method,
		URL:        url,
		StatusCode: status,
		StatusText: statusText(status, statusLine),
		Body:       body,
	}
	obj, err := value.ParseObject(body)
	if err != nil || obj == nil {
		return e
	}
	obj.Range(func(k string, v value.Value) bool {
		msg := joinMessage(v)
		if k == "detail" {
			e.Detail = msg
		}
		e.Fields = append(e.Fields, FieldError{Field: k, Message: msg})
		return true
	})
	return e
}

// statusText prefers the reason phrase the server sent.
func statusText(status int, statusLine string) string {
	text := strings.TrimSpace(strings.TrimPrefix(statusLine, fmt.Sprint(status)))
	if text == "" {
		text = http.StatusText(status)
	}
	return text
}

// joinMessage renders validation messages, which arrive as strings or
// lists of strings. Lists join with ",".
func joinMessage(v value.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []value.Value:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = joinMessage(item)
		}
		return strings.Join(parts, ",")
	}
	return value.ToString(v)
}

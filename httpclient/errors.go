package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is the error envelope returned by the management API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Method  string `json:"method"`
	URL     string `json:"url"`
}

// String returns the user facing notification text.
func (e APIError) String() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// ParseAPIError reports whether body has the API error shape: numeric code, string message, method and url.
func ParseAPIError(body []byte) (*APIError, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	code, ok := raw["code"].(float64)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"message", "method", "url"} {
		if _, ok := raw[key].(string); !ok {
			return nil, false
		}
	}
	details, _ := raw["details"].(string)
	return &APIError{
		Code:    int(code),
		Message: raw["message"].(string),
		Details: details,
		Method:  raw["method"].(string),
		URL:     raw["url"].(string),
	}, true
}

// StatusError is returned for every non 2xx response.
type StatusError struct {
	Code    int
	Method  string
	URL     string
	Message string
	API     *APIError
}

// NewStatusError builds StatusError from the request and the received response.
func NewStatusError(r *Request, resp *Response) *StatusError {
	e := &StatusError{
		Code:    resp.StatusCode,
		Method:  r.Method,
		URL:     r.URL,
		Message: http.StatusText(resp.StatusCode),
	}
	if api, ok := ParseAPIError(resp.Body); ok {
		e.API = api
		e.Message = api.Message
		return e
	}
	if msg := strings.TrimSpace(string(resp.Body)); msg != "" && len(msg) < 512 {
		e.Message = msg
	}
	return e
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Message)
}

// Is maps well known status codes to sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrStatusCodeMismatch:
		return true
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	}
	return false
}

// StatusCode extracts the http status from err, returns zero when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

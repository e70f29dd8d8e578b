package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

const unauthorizedLabel = "Unauthorized"

// ErrUnauthorized matches (errors.Is) any *APIError of KindUnauthorized.
var ErrUnauthorized = errors.New("unauthorized")

// ErrorKind classifies request failures.
type ErrorKind int

const (
	// KindHTTP non-2xx response other than 401.
	KindHTTP ErrorKind = iota
	// KindUnauthorized 401 response; stored tokens have been cleared.
	KindUnauthorized
	// KindNetwork the request never produced a response.
	KindNetwork
	// KindRemote 2xx response whose envelope reports a failure.
	KindRemote
	// KindDecode the response body could not be decoded.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindUnauthorized:
		return "unauthorized"
	case KindNetwork:
		return "network"
	case KindRemote:
		return "remote"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// APIError failure of one request.
type APIError struct {
	Kind     ErrorKind
	Status   int
	Method   string
	Endpoint string
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Kind == KindUnauthorized && !strings.EqualFold(msg, unauthorizedLabel) {
		msg = unauthorizedLabel + ": " + msg
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Endpoint, msg, e.Status)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

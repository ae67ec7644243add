package gptbatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrRetriesExhausted is returned once a request has used up its retry budget.
	ErrRetriesExhausted = errors.New("maximum number of retries exceeded")

	// ErrAttemptTimeout marks a single attempt that outlived Config.RequestTimeout.
	ErrAttemptTimeout = errors.New("request attempt timed out")

	// ErrTaskPanicked is returned by a pooled task that panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrMissingAPIKey is returned by New when Config.APIKey is empty.
	ErrMissingAPIKey = errors.New("api key is required")
)

// ErrorKind tags the cause of a failed Result.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindRateLimit      ErrorKind = "rate_limit"
	KindAPI            ErrorKind = "api"
	KindConnection     ErrorKind = "connection"
	KindTimeout        ErrorKind = "timeout"
	KindExhausted      ErrorKind = "retries_exhausted"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindCanceled       ErrorKind = "canceled"
	KindPanic          ErrorKind = "panic"
)

// Retryable reports whether errors of this kind are worth another attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindAPI, KindConnection, KindTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err belongs to the transient set: rate limits,
// server-side API errors, connection failures and attempt timeouts.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// Classify maps an error returned by the chat completion call, or by this
// package, onto an ErrorKind. A nil error is KindNone.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	// Wrappers from this package go first; they carry the cause inside.
	switch {
	case errors.Is(err, ErrTaskPanicked):
		return KindPanic
	case errors.Is(err, ErrRetriesExhausted):
		return KindExhausted
	case errors.Is(err, ErrAttemptTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, KindConnection)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnection
	}

	// Anything else, a bad model name or an undecodable body, will fail the same way again.
	return KindInvalidRequest
}

func classifyAPIError(apiErr *openai.APIError) ErrorKind {
	switch apiErr.Type {
	case "invalid_request_error", "authentication_error", "permission_error", "not_found_error":
		return KindInvalidRequest
	}
	if code, ok := apiErr.Code.(string); ok && code == "rate_limit_exceeded" {
		return KindRateLimit
	}
	// HTTPStatusCode is 0 for errors decoded out of a stream; treat those as generic API errors.
	return classifyStatus(apiErr.HTTPStatusCode, KindAPI)
}

func classifyStatus(status int, fallback ErrorKind) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= http.StatusInternalServerError:
		return KindAPI
	case status >= http.StatusBadRequest:
		return KindInvalidRequest
	}
	return fallback
}

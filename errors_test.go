package gptbatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"rate limit status", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, KindRateLimit},
		{"rate limit code", &openai.APIError{Code: "rate_limit_exceeded"}, KindRateLimit},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Type: "server_error"}, KindAPI},
		{"overloaded", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}, KindAPI},
		{"streamed api error", &openai.APIError{Message: "boom"}, KindAPI},
		{"invalid request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Type: "invalid_request_error"}, KindInvalidRequest},
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, KindInvalidRequest},
		{"request error 502", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, KindAPI},
		{"request error 429", &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests}, KindRateLimit},
		{"request error 404", &openai.RequestError{HTTPStatusCode: http.StatusNotFound}, KindInvalidRequest},
		{"request error 408", &openai.RequestError{HTTPStatusCode: http.StatusRequestTimeout}, KindTimeout},
		{"connection refused", &url.Error{Op: "Post", URL: "http://x", Err: syscall.ECONNREFUSED}, KindConnection},
		{"canceled", &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled}, KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
		{"attempt timeout", fmt.Errorf("%w: %w", ErrAttemptTimeout, context.DeadlineExceeded), KindTimeout},
		{"exhausted", fmt.Errorf("%w (3): %w", ErrRetriesExhausted, &openai.APIError{HTTPStatusCode: 429}), KindExhausted},
		{"panic", fmt.Errorf("%w: oops", ErrTaskPanicked), KindPanic},
		{"unknown", openai.ErrChatCompletionInvalidModel, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&url.Error{Op: "Post", URL: "http://x", Err: syscall.ECONNRESET}))
	assert.True(t, IsRetryable(fmt.Errorf("%w: slow", ErrAttemptTimeout)))
	assert.False(t, IsRetryable(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("%w (1): x", ErrRetriesExhausted)))
	assert.False(t, IsRetryable(nil))
}

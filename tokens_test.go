package gptbatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestCountTokensFallsBackForUnknownModels(t *testing.T) {
	conv := Conversation{UserMessage("abcdefgh")}

	// 3 reply + 3 framing + "user" (1) + "abcdefgh" (2)
	assert.Equal(t, 9, CountTokens("local-test-model", conv))
	assert.Equal(t, 3, CountTokens("local-test-model", nil))
}

func TestCountTokensGrowsWithConversation(t *testing.T) {
	short := Conversation{UserMessage("hi")}
	long := Conversation{SystemMessage("You are a helpful assistant."), UserMessage("hi"), AssistantMessage("Hello! How can I help?")}

	assert.Greater(t, CountTokens("local-test-model", long), CountTokens("local-test-model", short))
}

func TestEncodingLookupCachesOnlyUnknownModels(t *testing.T) {
	orig := encodingForModel
	defer func() { encodingForModel = orig }()
	conv := Conversation{UserMessage("abcdefgh")}

	calls := 0
	encodingForModel = func(model string) (*tiktoken.Tiktoken, error) {
		calls++
		return nil, errors.New("download failed")
	}
	assert.Equal(t, 9, CountTokens("flaky-download-model", conv))
	assert.Equal(t, 9, CountTokens("flaky-download-model", conv))
	assert.Equal(t, 2, calls, "a failed download is retried")
	_, cached := encodings.Load("flaky-download-model")
	assert.False(t, cached)

	calls = 0
	encodingForModel = func(model string) (*tiktoken.Tiktoken, error) {
		calls++
		return nil, fmt.Errorf("no encoding for model %s", model)
	}
	assert.Equal(t, 9, CountTokens("never-heard-of-it", conv))
	assert.Equal(t, 9, CountTokens("never-heard-of-it", conv))
	assert.Equal(t, 1, calls, "an unknown model is looked up once")
	_, cached = encodings.Load("never-heard-of-it")
	assert.True(t, cached)
}

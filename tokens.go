package gptbatch

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// Per-message framing overhead used by the chat format.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

var (
	encodings        sync.Map // model -> *tiktoken.Tiktoken, or nil when unknown
	encodingForModel = tiktoken.EncodingForModel
)

func encodingFor(model string) *tiktoken.Tiktoken {
	if strings.HasPrefix(model, "gpt-4") {
		model = openai.GPT4
	} else if strings.HasPrefix(model, "gpt-3.5-turbo") {
		model = openai.GPT3Dot5Turbo
	}

	if enc, ok := encodings.Load(model); ok {
		return enc.(*tiktoken.Tiktoken)
	}
	enc, err := encodingForModel(model)
	if err != nil {
		// Only an unknown model is final; a failed encoding download is tried again next time.
		if strings.HasPrefix(err.Error(), "no encoding for model") {
			encodings.Store(model, (*tiktoken.Tiktoken)(nil))
		}
		return nil
	}
	encodings.Store(model, enc)
	return enc
}

// CountTokens estimates the prompt tokens conv costs against model. Models
// without a known encoding fall back to four characters per token.
func CountTokens(model string, conv Conversation) int {
	enc := encodingFor(model)

	total := tokensPerReply
	for _, msg := range conv {
		total += tokensPerMessage
		for _, text := range []string{msg.Role, msg.Name, msg.Content} {
			if text == "" {
				continue
			}
			if enc != nil {
				total += len(enc.Encode(text, nil, nil))
			} else {
				total += (len(text) + 3) / 4
			}
		}
	}
	return total
}

package gptbatch

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/vbauerster/mpb/v8"
)

// Defaults applied by DefaultConfig and New.
const (
	DefaultModel        = openai.GPT3Dot5Turbo
	DefaultStaggerBound = 2 * time.Second
	DefaultConcurrency  = 10
)

// Config is fixed when a Client is built. Zero values are meaningful: a zero
// StaggerBound issues calls without a stagger and zero rate limits disable
// limiting. Use DefaultConfig for the usual settings.
type Config struct {
	// APIKey is the static credential sent with every request.
	APIKey string
	// Organization is the optional account to bill requests to.
	Organization string
	// Model defaults to DefaultModel when empty.
	Model string
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL    string
	HTTPClient *http.Client

	// StaggerBound is the upper bound of the random delay each conversation
	// waits before its first call.
	StaggerBound time.Duration
	// Concurrency caps the calls in flight for the whole client. Values
	// below one mean one.
	Concurrency int
	// RequestsPerSecond and TokensPerMinute throttle attempts when positive.
	RequestsPerSecond float64
	TokensPerMinute   int
	// RequestTimeout bounds one attempt when positive. Timed-out attempts are retried.
	RequestTimeout time.Duration

	Retry RetryPolicy

	Logger   Logger
	Progress *mpb.Progress
	// OnResult is called as each conversation finishes, in completion order.
	OnResult func(Result)
}

// DefaultConfig returns the usual settings for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:       apiKey,
		Model:        DefaultModel,
		StaggerBound: DefaultStaggerBound,
		Concurrency:  DefaultConcurrency,
		Retry:        DefaultRetryPolicy(),
	}
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.StaggerBound < 0 {
		c.StaggerBound = 0
	}
	if c.Logger == nil {
		c.Logger = &noOpLogger{}
	}
	return c
}

func (c Config) openAIConfig() openai.ClientConfig {
	oc := openai.DefaultConfig(c.APIKey)
	oc.OrgID = c.Organization
	if c.BaseURL != "" {
		oc.BaseURL = c.BaseURL
	}
	if c.HTTPClient != nil {
		oc.HTTPClient = c.HTTPClient
	}
	return oc
}

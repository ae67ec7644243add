package gptbatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one role-tagged entry of a conversation.
type Message = openai.ChatCompletionMessage

// Conversation is an ordered chat history to be completed in one request.
type Conversation []Message

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleAssistant, Content: content}
}

// ChatCompleter is the single call the client makes. *openai.Client implements it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Result: The outcome of one conversation. Exactly one of Response and Err is meaningful.
type Result struct {
	Index        int                           `json:"index"`
	Conversation Conversation                  `json:"conversation"`
	Response     openai.ChatCompletionResponse `json:"response"`
	Attempts     int                           `json:"attempts"`
	Kind         ErrorKind                     `json:"kind,omitempty"`
	Error        string                        `json:"error,omitempty"`
	Err          error                         `json:"-"`
}

// OK reports whether the conversation completed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Content returns the text of the first choice, or "" for failures.
func (r Result) Content() string {
	if r.Err != nil || len(r.Response.Choices) == 0 {
		return ""
	}
	return r.Response.Choices[0].Message.Content
}

// FinishReason returns the finish reason of the first choice.
func (r Result) FinishReason() string {
	if r.Err != nil || len(r.Response.Choices) == 0 {
		return ""
	}
	return string(r.Response.Choices[0].FinishReason)
}

// Client: The main struct responsible for dispatching conversations concurrently with retries.
// It is safe for concurrent use; all batches share its concurrency limit and rate limits.
type Client struct {
	api       ChatCompleter
	cfg       Config
	logger    Logger
	pool      *pool
	admission *admission
	int63n    func(n int64) int64
}

// New builds a Client talking to the OpenAI API with cfg's credentials.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return NewWithAPI(openai.NewClientWithConfig(cfg.openAIConfig()), cfg), nil
}

// NewWithAPI builds a Client on top of an existing ChatCompleter. cfg.APIKey,
// Organization, BaseURL and HTTPClient are ignored; api carries its own.
func NewWithAPI(api ChatCompleter, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		api:       api,
		cfg:       cfg,
		logger:    cfg.Logger,
		pool:      newPool(cfg.Concurrency),
		admission: newAdmission(cfg.RequestsPerSecond, cfg.TokensPerMinute),
		int63n:    rand.Int63n,
	}
}

// Model returns the model every request is sent to.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Batch is a pending set of results from Submit.
type Batch struct {
	done    chan struct{}
	results []Result
}

// Done is closed once every result is in.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch finishes and returns its results in submission order.
func (b *Batch) Wait() []Result {
	<-b.done
	return b.results
}

// WaitContext is Wait, giving up when ctx ends. Giving up does not cancel the
// batch; cancel the context passed to Submit for that.
func (b *Batch) WaitContext(ctx context.Context) ([]Result, error) {
	select {
	case <-b.done:
		return b.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit dispatches every conversation at once and returns without waiting.
// results[i] of the batch always belongs to conversations[i]; failures are
// reported per result and never abort the batch.
//
// With Progress or TokensPerMinute set, Submit counts prompt tokens before
// returning. The first count for a model may fetch its tiktoken encoding.
func (c *Client) Submit(ctx context.Context, conversations []Conversation) *Batch {
	b := &Batch{
		done:    make(chan struct{}),
		results: make([]Result, len(conversations)),
	}

	tokens := make([]int64, len(conversations))
	var totalTokens int64
	if c.cfg.Progress != nil || c.admission.countsTokens() {
		for i, conv := range conversations {
			tokens[i] = int64(CountTokens(c.cfg.Model, conv))
			totalTokens += tokens[i]
		}
	}
	progress := newTracker(c.cfg.Progress, totalTokens)

	futures := make([]*future[Result], len(conversations))
	for i, conv := range conversations {
		i, conv, weight := i, conv, tokens[i]
		futures[i] = submit(ctx, c.pool, func(ctx context.Context) (Result, error) {
			res := c.complete(ctx, i, conv, int(weight), progress)
			progress.completed(weight)
			return res, nil
		})
	}

	go func() {
		defer close(b.done)
		for i, f := range futures {
			// Futures always resolve, so the background context never cuts this short.
			res, err := f.Wait(context.Background())
			if err != nil {
				res = c.failed(i, conversations[i], 0, err)
				c.notify(res)
			}
			b.results[i] = res
		}
		progress.finish()
	}()

	return b
}

// Complete runs Submit and waits for the results.
func (c *Client) Complete(ctx context.Context, conversations []Conversation) []Result {
	return c.Submit(ctx, conversations).Wait()
}

// Stream: A method that completes conversations received from a channel and sends results to a channel
// in completion order. Result.Index is the position the conversation arrived in. The returned channel
// is closed after in is closed and every result has been sent. Once ctx is done, results nobody
// receives are dropped.
func (c *Client) Stream(ctx context.Context, in <-chan Conversation) <-chan Result {
	out := make(chan Result)
	progress := newTracker(c.cfg.Progress, 0)

	go func() {
		wg := sync.WaitGroup{}
		i := 0
		for conv := range in {
			var weight int64
			if c.cfg.Progress != nil || c.admission.countsTokens() {
				weight = int64(CountTokens(c.cfg.Model, conv))
				progress.grow(weight)
			}

			wg.Add(1)
			index, conv := i, conv
			f := submit(ctx, c.pool, func(ctx context.Context) (Result, error) {
				res := c.complete(ctx, index, conv, int(weight), progress)
				progress.completed(weight)
				return res, nil
			})
			go func() {
				defer wg.Done()
				res, err := f.Wait(context.Background())
				if err != nil {
					res = c.failed(index, conv, 0, err)
					c.notify(res)
				}
				select {
				case out <- res:
				case <-ctx.Done():
				}
			}()
			i++
		}
		wg.Wait()
		progress.finish()
		close(out)
	}()

	return out
}

// complete runs one conversation: stagger, then the call under the retry policy.
func (c *Client) complete(ctx context.Context, index int, conv Conversation, tokens int, progress *tracker) Result {
	name := fmt.Sprintf("Query # %d", index)

	if err := c.stagger(ctx); err != nil {
		res := c.failed(index, conv, 0, err)
		c.notify(res)
		return res
	}

	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: conv,
	}

	policy := c.cfg.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.logger.Debugf("%s: attempt %d failed (%s), retrying in %v: %v", name, attempt, Classify(err), delay, err)
		progress.retrying(ctx, name, err, delay)
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}

	resp, attempts, err := Retry(ctx, policy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.call(ctx, req, tokens)
	})
	if err != nil {
		res := c.failed(index, conv, attempts, err)
		c.notify(res)
		return res
	}

	c.logger.Debugf("%s: completed after %d attempt(s)", name, attempts)
	res := Result{
		Index:        index,
		Conversation: conv,
		Response:     resp,
		Attempts:     attempts,
	}
	c.notify(res)
	return res
}

// call is a single attempt.
func (c *Client) call(ctx context.Context, req openai.ChatCompletionRequest, tokens int) (openai.ChatCompletionResponse, error) {
	if err := c.admission.wait(ctx, tokens); err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	attemptCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %v: %w", ErrAttemptTimeout, c.cfg.RequestTimeout, err)
	}
	return resp, err
}

// stagger sleeps a uniform random delay in [0, StaggerBound).
func (c *Client) stagger(ctx context.Context) error {
	if c.cfg.StaggerBound <= 0 {
		return nil
	}
	delay := time.Duration(c.int63n(int64(c.cfg.StaggerBound)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) failed(index int, conv Conversation, attempts int, err error) Result {
	kind := Classify(err)
	switch kind {
	case KindExhausted:
		c.logger.Warnf("Query # %d: %v", index, err)
	case KindCanceled:
		c.logger.Debugf("Query # %d: %v", index, err)
	default:
		//This error doesn't follow the standard.
		if strings.Contains(err.Error(), "You didn't provide an API key.") {
			c.logger.Error("No API Key was provided.")
		}
		c.logger.Errorf("Query # %d failed (%s): %v", index, kind, err)
	}
	return Result{
		Index:        index,
		Conversation: conv,
		Attempts:     attempts,
		Kind:         kind,
		Error:        err.Error(),
		Err:          err,
	}
}

// notify hands res to OnResult. A panicking callback is logged and does not
// affect the result.
func (c *Client) notify(res Result) {
	if c.cfg.OnResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Query # %d: OnResult panicked: %v", res.Index, r)
		}
	}()
	c.cfg.OnResult(res)
}

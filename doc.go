// gptbatch project doc.go

/*
Package gptbatch completes batches of chat conversations concurrently against the OpenAI chat completion API using the go-openai library.

A Client dispatches every conversation of a batch at once, bounded by a configurable concurrency limit shared across batches. Each conversation waits a random stagger delay before its first call, then is retried with jittered exponential backoff on rate limits, server-side API errors and connection failures. Results come back in submission order, one per conversation; a failed conversation is reported as an error result next to the successes and never aborts the batch.

Submit is the asynchronous entry point and returns a Batch to wait on; Complete is the blocking form. Stream consumes conversations from a channel and emits results as they finish.

Optional request and token rate limits, per-attempt timeouts and mpb progress bars are available through Config.
*/
package gptbatch

// Package httpx holds the retry policy shared by courier's outbound HTTP
// clients (gateway, llm). It retries HTTP 408/429/5xx responses, network
// timeouts, and errors explicitly marked retryable, with capped exponential
// backoff that honours Retry-After. Context cancellation stops retries
// immediately.
package httpx

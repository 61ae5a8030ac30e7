// Package llm provides an OpenAI-compatible chat completion client used as the
// reply generator for message_reply items.
//
// The request carries the configured system prompt, the channel's recent
// conversation turns, and the new user message. OpenRouter is the default
// endpoint; any service speaking the chat completions schema works.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Generate: satisfy dispatch.Generator.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// Requests retry on HTTP 408/429/5xx, network timeouts, and empty completions
// using the shared httpx policy (base 1s, max 10s, up to 5 attempts by default).
package llm

// Package llm defines the provider-neutral chat completion contract used by
// the agent, plus client decorators for retries and latency metrics.
// Concrete providers live in the openai, anthropic and pythonbridge subpackages.
package llm

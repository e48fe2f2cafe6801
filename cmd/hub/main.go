// OpenClaw Hub is a local AI gateway that puts every LLM provider behind
// one OpenAI-compatible endpoint.
//
// It normalises OpenAI, Anthropic and local Ollama servers behind a single
// chat completion API, providing:
//   - Prefix-based model routing with provider fallback
//   - Retry with exponential backoff and Retry-After handling
//   - Per-connection budget enforcement and cost accounting
//   - Encrypted credential storage (AES-256-GCM)
//   - Provider health tracking with background recovery probes
//   - Alerting via webhook and desktop notifications
//
// Usage:
//
//	# Start the gateway with default configuration
//	hub run
//
//	# Start with a custom configuration file
//	hub run --config /path/to/hub.yaml
//
//	# Generate a fresh vault key
//	hub genkey
//
//	# Show version information
//	hub version
package main

func main() {
	Execute()
}

// Package server is a thin local debugging surface over a provider.Provider.
// It holds no state of its own beyond the event bus.
//
// # API Endpoints
//
//   - GET /health: liveness and provider name
//   - GET /config: the resolved connection profile with the credential masked
//   - GET /instructions?model=: base and user instructions a responses call
//     would send
//   - POST /generate: runs a call to completion and returns the result
//   - POST /stream: runs a call and relays every stream event as SSE
//   - GET /event: generation lifecycle events as SSE
//
// POST bodies are call options plus optional "model" and "wireApi" fields:
//
//	{"model": "gpt-5-codex", "prompt": [{"role": "user", "content": "hi"}]}
//
// Every generation publishes generation.started followed by either
// generation.finished or generation.failed on the bus.
package server

// Package config resolves a connection profile from a codex settings home.
//
// The settings home is a directory holding two files:
//
//   - config.toml: top-level model and model_provider keys plus one
//     [model_providers.<id>] table per provider
//   - auth.json: a flat JSON object of credentials
//
// Resolution order for the home directory is the explicit option, then
// $CODEX_HOME, then ~/.codex.
//
// # Provider settings
//
//	model = "gpt-5-codex"
//	model_provider = "azure"
//
//	[model_providers.azure]
//	base_url = "https://example.openai.azure.com/openai"
//	env_key = "AZURE_OPENAI_API_KEY"
//	wire_api = "responses"
//	query_params = { api-version = "2025-04-01-preview" }
//	http_headers = { "X-Team" = "platform" }
//	env_http_headers = { "X-Trace" = "TRACE_TOKEN" }
//
// The "openai" provider needs no table: it defaults to the responses wire API,
// https://api.openai.com/v1 and the OPENAI_API_KEY credential. Every other
// provider defaults to the chat wire API and has no default endpoint.
//
// Credentials are looked up in the environment first and then in auth.json
// under the same key. A provider that declares no env_key and does not require
// OpenAI auth has no credential.
//
// Resolve takes the environment and file system as parameters (Env, afero.Fs)
// and never talks to the network, so it can be called any number of times.
package config

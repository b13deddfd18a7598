package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/agnivade/levenshtein"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

const (
	// DefaultProviderID is used when config.toml names no model_provider. It is
	// also the only provider with built-in defaults.
	DefaultProviderID = "openai"
	// DefaultModel is used when config.toml names no model.
	DefaultModel = "gpt-5-codex"
	// DefaultOpenAIBaseURL is the endpoint of the default provider.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// OpenAIAPIKeyEnv is the credential variable implied by requires_openai_auth.
	OpenAIAPIKeyEnv = "OPENAI_API_KEY"

	legacyOpenAIAPIKeyAuth = "_OPENAI_API_KEY"
)

// WireAPI selects the call shape used against the transport.
type WireAPI string

const (
	WireAPIChat      WireAPI = "chat"
	WireAPIResponses WireAPI = "responses"
)

var wireAPIs = []WireAPI{WireAPIChat, WireAPIResponses}

// ParseWireAPI validates a wire_api value.
func ParseWireAPI(s string) (WireAPI, error) {
	for _, api := range wireAPIs {
		if string(api) == s {
			return api, nil
		}
	}
	msg := fmt.Sprintf("unsupported wire_api: %q", s)
	if suggestion := closestWireAPI(s); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return "", &ConfigError{Field: "wire_api", Msg: msg}
}

func closestWireAPI(s string) WireAPI {
	best := lo.MinBy(wireAPIs, func(a, b WireAPI) bool {
		return levenshtein.ComputeDistance(s, string(a)) < levenshtein.ComputeDistance(s, string(b))
	})
	if levenshtein.ComputeDistance(s, string(best)) > 3 {
		return ""
	}
	return best
}

// ConfigError is a fatal configuration problem detected before any network
// activity.
type ConfigError struct {
	Path  string
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg + ": " + e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		if e.Field != "" {
			b.WriteString(e.Field + ": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func withPath(err error, path string) error {
	var cerr *ConfigError
	if errors.As(err, &cerr) && cerr.Path == "" {
		cerr.Path = path
	}
	return err
}

// File mirrors the subset of config.toml this provider reads. Unknown keys
// and tables are ignored.
type File struct {
	Model          *string                   `toml:"model"`
	ModelProvider  string                    `toml:"model_provider"`
	ModelProviders map[string]ProviderConfig `toml:"model_providers"`
}

// ProviderConfig is a [model_providers.<id>] table.
type ProviderConfig struct {
	Name               string            `toml:"name"`
	BaseURL            string            `toml:"base_url"`
	EnvKey             string            `toml:"env_key"`
	WireAPI            string            `toml:"wire_api"`
	QueryParams        map[string]any    `toml:"query_params"`
	HTTPHeaders        map[string]string `toml:"http_headers"`
	EnvHTTPHeaders     map[string]string `toml:"env_http_headers"`
	RequiresOpenAIAuth *bool             `toml:"requires_openai_auth"`
}

// Profile is the fully resolved connection profile for one model resolution.
type Profile struct {
	Home        string            `json:"home" yaml:"home"`
	ProviderID  string            `json:"providerId" yaml:"provider_id"`
	Model       string            `json:"model" yaml:"model"`
	WireAPI     WireAPI           `json:"wireApi" yaml:"wire_api"`
	BaseURL     string            `json:"baseUrl,omitempty" yaml:"base_url,omitempty"`
	APIKey      string            `json:"apiKey,omitempty" yaml:"api_key,omitempty"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	QueryParams map[string]string `json:"queryParams,omitempty" yaml:"query_params,omitempty"`
}

// Endpoint returns the base URL with the query parameters applied.
func (p *Profile) Endpoint() (string, error) {
	return ApplyQueryParams(p.BaseURL, p.QueryParams)
}

// Redacted returns a copy safe to print: the credential is masked.
func (p Profile) Redacted() Profile {
	out := p
	out.Headers = maps.Clone(p.Headers)
	if p.APIKey != "" {
		out.APIKey = maskSecret(p.APIKey)
	}
	return out
}

// Options controls Resolve.
type Options struct {
	// Home overrides the settings home directory.
	Home string
	// Env defaults to the process environment.
	Env Env
	// Fs defaults to the OS file system.
	Fs afero.Fs
}

// Resolve reads config.toml and auth.json from the settings home and produces
// a Profile. It performs no network I/O.
func Resolve(opts Options) (*Profile, error) {
	env := opts.Env
	if env == nil {
		env = OSEnv
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	home := HomeDir(opts.Home, env)

	file, err := LoadFile(fs, ConfigPath(home))
	if err != nil {
		return nil, err
	}
	auth := loadAuth(fs, AuthPath(home))

	providerID := file.ModelProvider
	if providerID == "" {
		providerID = DefaultProviderID
	}
	model := DefaultModel
	if file.Model != nil {
		model = *file.Model
	}
	pc := file.ModelProviders[providerID]

	wireAPI := defaultWireAPI(providerID)
	if pc.WireAPI != "" {
		if wireAPI, err = ParseWireAPI(pc.WireAPI); err != nil {
			return nil, withPath(err, ConfigPath(home))
		}
	}

	queryParams, err := stringifyQueryParams(pc.QueryParams)
	if err != nil {
		return nil, &ConfigError{Path: ConfigPath(home), Field: "query_params", Err: err}
	}

	headers, err := resolveHeaders(pc, env)
	if err != nil {
		return nil, &ConfigError{Path: ConfigPath(home), Field: "http_headers", Err: err}
	}

	return &Profile{
		Home:        home,
		ProviderID:  providerID,
		Model:       model,
		WireAPI:     wireAPI,
		BaseURL:     resolveBaseURL(providerID, pc),
		APIKey:      resolveAPIKey(providerID, pc, env, auth),
		Headers:     headers,
		QueryParams: queryParams,
	}, nil
}

// LoadFile parses config.toml. A missing file yields an empty File.
func LoadFile(fs afero.Fs, path string) (*File, error) {
	file := &File{ModelProviders: map[string]ProviderConfig{}}

	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return file, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := toml.Unmarshal(data, file); err != nil {
		return nil, &ConfigError{Path: path, Msg: "invalid TOML", Err: err}
	}
	if file.ModelProviders == nil {
		file.ModelProviders = map[string]ProviderConfig{}
	}
	return file, nil
}

// loadAuth reads the flat credentials file. Missing or malformed files yield
// an empty store; non-string values are ignored.
func loadAuth(fs afero.Fs, path string) map[string]string {
	auth := map[string]string{}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return auth
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return auth
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			auth[k] = s
		}
	}
	return auth
}

// ResolveModel picks the model id: the configured model unless the caller
// opted out of it with useConfigModel=false and requested a concrete id.
func ResolveModel(configModel, requested string, useConfigModel *bool) string {
	if useConfigModel == nil || *useConfigModel {
		return configModel
	}
	if requested != "" && requested != "default" {
		return requested
	}
	return configModel
}

// ApplyQueryParams sets each parameter on the base URL, replacing existing
// values with the same key.
func ApplyQueryParams(baseURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return baseURL, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base_url %q: %w", baseURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func defaultWireAPI(providerID string) WireAPI {
	if providerID == DefaultProviderID {
		return WireAPIResponses
	}
	return WireAPIChat
}

func resolveBaseURL(providerID string, pc ProviderConfig) string {
	if pc.BaseURL != "" {
		return pc.BaseURL
	}
	if providerID == DefaultProviderID {
		return DefaultOpenAIBaseURL
	}
	return ""
}

func requiresOpenAIAuth(providerID string, pc ProviderConfig) bool {
	if pc.RequiresOpenAIAuth != nil {
		return *pc.RequiresOpenAIAuth
	}
	return providerID == DefaultProviderID
}

// resolveAPIKey reads env_key from the environment, then auth.json. Without
// env_key, providers that require OpenAI auth use OPENAI_API_KEY and the
// legacy _OPENAI_API_KEY entry of auth.json.
func resolveAPIKey(providerID string, pc ProviderConfig, env Env, auth map[string]string) string {
	if pc.EnvKey != "" {
		return lo.CoalesceOrEmpty(env.Getenv(pc.EnvKey), auth[pc.EnvKey])
	}
	if !requiresOpenAIAuth(providerID, pc) {
		return ""
	}
	return lo.CoalesceOrEmpty(env.Getenv(OpenAIAPIKeyEnv), auth[OpenAIAPIKeyEnv], auth[legacyOpenAIAPIKeyAuth])
}

func resolveHeaders(pc ProviderConfig, env Env) (map[string]string, error) {
	headers := make(map[string]string, len(pc.HTTPHeaders)+len(pc.EnvHTTPHeaders))
	maps.Copy(headers, pc.HTTPHeaders)

	fromEnv := lo.PickBy(
		lo.MapValues(pc.EnvHTTPHeaders, func(envVar string, _ string) string { return env.Getenv(envVar) }),
		func(_ string, value string) bool { return strings.TrimSpace(value) != "" },
	)
	if err := mergo.Merge(&headers, fromEnv, mergo.WithOverride); err != nil {
		return nil, err
	}
	return headers, nil
}

func stringifyQueryParams(params map[string]any) (map[string]string, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(params))
	keys := lo.Keys(params)
	sort.Strings(keys)
	for _, k := range keys {
		switch v := params[k].(type) {
		case string:
			out[k] = v
		case bool:
			out[k] = strconv.FormatBool(v)
		case int64:
			out[k] = strconv.FormatInt(v, 10)
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("query parameter %q must be a string, number or boolean, got %T", k, v)
		}
	}
	return out, nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

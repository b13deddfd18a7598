package types

import (
	"encoding/json"
	"maps"
)

// ProviderOptions holds provider-scoped request settings, keyed by provider
// name and then by option name (e.g. ["openai"]["instructions"]).
type ProviderOptions map[string]map[string]any

// Get returns a single provider option.
func (p ProviderOptions) Get(provider, key string) (any, bool) {
	scoped, ok := p[provider]
	if !ok {
		return nil, false
	}
	v, ok := scoped[key]
	return v, ok
}

// String returns a provider option as a string, or "" when absent or not a string.
func (p ProviderOptions) String(provider, key string) string {
	v, _ := p.Get(provider, key)
	s, _ := v.(string)
	return s
}

// Set assigns a provider option, creating the provider scope when needed.
// Callers must own p; use Clone first when p is shared.
func (p ProviderOptions) Set(provider, key string, value any) {
	if p[provider] == nil {
		p[provider] = make(map[string]any)
	}
	p[provider][key] = value
}

// Delete removes a provider option and drops the scope once it is empty.
func (p ProviderOptions) Delete(provider, key string) {
	scoped, ok := p[provider]
	if !ok {
		return
	}
	delete(scoped, key)
	if len(scoped) == 0 {
		delete(p, provider)
	}
}

// Clone copies both map levels. Values themselves are shared.
func (p ProviderOptions) Clone() ProviderOptions {
	if p == nil {
		return nil
	}
	out := make(ProviderOptions, len(p))
	for provider, scoped := range p {
		out[provider] = maps.Clone(scoped)
	}
	return out
}

// Tool is a function tool declared for a call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CallOptions is the request record accepted by a language model handle.
type CallOptions struct {
	Prompt          []Message         `json:"prompt"`
	MaxOutputTokens *int              `json:"maxOutputTokens,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	TopP            *float64          `json:"topP,omitempty"`
	StopSequences   []string          `json:"stopSequences,omitempty"`
	Tools           []Tool            `json:"tools,omitempty"`
	ProviderOptions ProviderOptions   `json:"providerOptions,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// Clone returns a copy of the options that can be modified without touching o.
func (o *CallOptions) Clone() *CallOptions {
	if o == nil {
		return &CallOptions{}
	}
	out := *o
	if o.Prompt != nil {
		out.Prompt = make([]Message, len(o.Prompt))
		for i, m := range o.Prompt {
			out.Prompt[i] = m.Clone()
		}
	}
	if o.MaxOutputTokens != nil {
		v := *o.MaxOutputTokens
		out.MaxOutputTokens = &v
	}
	if o.Temperature != nil {
		v := *o.Temperature
		out.Temperature = &v
	}
	if o.TopP != nil {
		v := *o.TopP
		out.TopP = &v
	}
	if o.StopSequences != nil {
		out.StopSequences = append([]string(nil), o.StopSequences...)
	}
	if o.Tools != nil {
		out.Tools = append([]Tool(nil), o.Tools...)
	}
	out.ProviderOptions = o.ProviderOptions.Clone()
	out.Headers = maps.Clone(o.Headers)
	return &out
}

// ToolNames returns the names of the declared tools in order.
func (o *CallOptions) ToolNames() []string {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.Tools))
	for _, t := range o.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Pricing holds per-million-token rates used to compute the cost of a call.
type Pricing struct {
	InputPerMToken  float64 `json:"input_per_mtoken" yaml:"input_per_mtoken"`
	OutputPerMToken float64 `json:"output_per_mtoken" yaml:"output_per_mtoken"`
}

// Enabled reports whether any rate is set.
func (p *Pricing) Enabled() bool {
	return p != nil && (p.InputPerMToken != 0 || p.OutputPerMToken != 0)
}

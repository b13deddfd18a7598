package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"strings"

	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

// CostKey is the provider metadata field holding the computed call cost.
const CostKey = "cost"

// CollectOptions configures Collect.
type CollectOptions struct {
	// Pricing enables cost computation when any rate is non-zero.
	Pricing *types.Pricing
	// ProviderName scopes the cost entry in the provider metadata.
	ProviderName string
}

// collector holds the running state of one Collect call.
type collector struct {
	text      map[string]*strings.Builder
	reasoning map[string]*strings.Builder
	result    types.Result
}

// Collect drains s and reduces its events into a Result. Blocks that never
// see their end event are dropped. An Error event aborts collection and its
// error is returned as is, as is any error returned by the stream itself.
// The stream is closed before Collect returns.
func Collect(ctx context.Context, s *Stream, opts CollectOptions) (*types.Result, error) {
	defer s.Close()

	c := &collector{
		text:      make(map[string]*strings.Builder),
		reasoning: make(map[string]*strings.Builder),
		result: types.Result{
			Content:      []types.ContentBlock{},
			FinishReason: types.FinishUnknown,
			Warnings:     []types.Warning{},
		},
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := c.apply(ev); err != nil {
			return nil, err
		}
	}

	if c.result.Response.Headers == nil && len(s.Headers) > 0 {
		c.result.Response.Headers = maps.Clone(s.Headers)
	}
	if opts.Pricing.Enabled() {
		c.addCost(opts.Pricing, opts.ProviderName)
	}
	return &c.result, nil
}

func (c *collector) apply(ev Event) error {
	switch e := ev.(type) {
	case StreamStart:
		c.result.Warnings = e.Warnings
		if c.result.Warnings == nil {
			c.result.Warnings = []types.Warning{}
		}
	case TextStart:
		c.text[e.ID] = &strings.Builder{}
	case TextDelta:
		if b, ok := c.text[e.ID]; ok {
			b.WriteString(e.Delta)
		}
	case TextEnd:
		if b, ok := c.text[e.ID]; ok {
			c.result.Content = append(c.result.Content, types.TextBlock{Text: b.String()})
			delete(c.text, e.ID)
		}
	case ReasoningStart:
		c.reasoning[e.ID] = &strings.Builder{}
	case ReasoningDelta:
		if b, ok := c.reasoning[e.ID]; ok {
			b.WriteString(e.Delta)
		}
	case ReasoningEnd:
		if b, ok := c.reasoning[e.ID]; ok {
			c.result.Content = append(c.result.Content, types.ReasoningBlock{Text: b.String()})
			delete(c.reasoning, e.ID)
		}
	case ToolCall:
		c.result.Content = append(c.result.Content, e.ToolCallBlock)
	case ToolResult:
		c.result.Content = append(c.result.Content, e.ToolResultBlock)
	case File:
		c.result.Content = append(c.result.Content, e.FileBlock)
	case Source:
		c.result.Content = append(c.result.Content, e.SourceBlock)
	case ResponseMetadata:
		c.result.Response = e.ResponseMetadata
	case Finish:
		if e.FinishReason != "" {
			c.result.FinishReason = e.FinishReason
		}
		if e.Usage != nil {
			c.result.Usage = *e.Usage
		}
		if e.ProviderMetadata != nil {
			c.result.ProviderMetadata = e.ProviderMetadata
		}
	case Error:
		if e.Err == nil {
			return errors.New("stream: error event without error")
		}
		return e.Err
	default:
		return fmt.Errorf("stream: unexpected event %T", ev)
	}
	return nil
}

// addCost attaches in/1e6*inRate + out/1e6*outRate to the provider metadata
// when the value is finite.
func (c *collector) addCost(p *types.Pricing, providerName string) {
	var in, out float64
	if v := c.result.Usage.InputTokens; v != nil {
		in = float64(*v)
	}
	if v := c.result.Usage.OutputTokens; v != nil {
		out = float64(*v)
	}
	cost := in/1e6*p.InputPerMToken + out/1e6*p.OutputPerMToken
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return
	}

	meta := c.result.ProviderMetadata.Clone()
	if meta == nil {
		meta = types.ProviderMetadata{}
	}
	if meta[providerName] == nil {
		meta[providerName] = map[string]any{}
	}
	meta[providerName][CostKey] = cost
	c.result.ProviderMetadata = meta
}

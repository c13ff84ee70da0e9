// Package openai provides an LLM provider backed by the OpenAI API.
//
// It exists alongside the anyllm provider for deployments that want the
// official SDK's retry and timeout behaviour rather than the unified client.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// Option configures the provider at construction time.
type Option func(*settings)

type settings struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}
	if s.timeout > 0 {
		clientOpts = append(clientOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{client: oai.NewClient(clientOpts...), model: model}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.chatParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()

		var calls toolCallAssembler
		for stream.Next() {
			ev := stream.Current()
			if len(ev.Choices) == 0 {
				continue
			}
			choice := ev.Choices[0]

			chunk := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			for _, tc := range choice.Delta.ToolCalls {
				calls.absorb(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
			}
			if choice.FinishReason != "" {
				chunk.ToolCalls = calls.finished()
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// toolCallAssembler joins the per-delta tool call fragments the streaming
// API emits into complete calls, keyed by choice index.
type toolCallAssembler struct {
	byIndex map[int]*types.ToolCall
}

func (a *toolCallAssembler) absorb(idx int, id, name, args string) {
	if a.byIndex == nil {
		a.byIndex = map[int]*types.ToolCall{}
	}
	call := a.byIndex[idx]
	if call == nil {
		call = &types.ToolCall{}
		a.byIndex[idx] = call
	}
	if id != "" {
		call.ID = id
	}
	if name != "" {
		call.Name = name
	}
	call.Arguments += args
}

func (a *toolCallAssembler) finished() []types.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	calls := make([]types.ToolCall, 0, len(a.byIndex))
	for i := 0; i < len(a.byIndex); i++ {
		if call, ok := a.byIndex[i]; ok {
			calls = append(calls, *call)
		}
	}
	return calls
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.chatParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	msg := resp.Choices[0].Message
	result := &llm.CompletionResponse{
		Content: msg.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	caps := types.ModelCapabilities{
		SupportsToolCalling: true,
		SupportsStreaming:   true,
		ContextWindow:       128_000,
		MaxOutputTokens:     4_096,
	}

	switch name := strings.ToLower(p.model); {
	case strings.HasPrefix(name, "gpt-4o"):
		// covers gpt-4o and gpt-4o-mini
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(name, "gpt-4-turbo"):
		// defaults apply
	case strings.HasPrefix(name, "gpt-4"):
		caps.ContextWindow = 8_192
	case strings.HasPrefix(name, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case strings.HasPrefix(name, "o1-mini"):
		caps.MaxOutputTokens = 65_536
		caps.SupportsToolCalling = false
	case strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 100_000
	}
	return caps
}

func (p *Provider) chatParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		converted, err := toMessageParam(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, converted)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}
	return params, nil
}

func toMessageParam(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = oai.String(m.Name)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}

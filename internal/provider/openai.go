package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
)

// OpenAI is a Gateway backed by the OpenAI chat completions API, or any
// endpoint speaking the same protocol via a custom base URL.
type OpenAI struct {
	client *openai.Client
	logger log.Logger
}

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty means api.openai.com
}

// NewOpenAI creates the OpenAI gateway.
func NewOpenAI(cfg OpenAIConfig, logger log.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}
}

// Complete implements Gateway.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Gateway. Fragments map one-to-one onto the wire deltas:
// content chunks become text fragments and tool-call chunks become tool
// deltas keyed by their index.
func (o *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req, true))
		if err != nil {
			yield(Fragment{}, fmt.Errorf("openai stream failed: %w", err))
			return
		}
		defer stream.Close() //nolint:errcheck

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Fragment{}, fmt.Errorf("openai stream read failed: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !yield(Fragment{Text: delta.Content}, nil) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				frag := Fragment{Tool: &ToolDelta{
					Index:     index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}}
				if !yield(frag, nil) {
					return
				}
			}
		}
	}
}

func (o *OpenAI) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		out := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, out)
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Params.Temperature,
		MaxTokens:   req.Params.MaxTokens,
		Stream:      stream,
	}
}

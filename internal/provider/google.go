package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
)

// Google is a Gateway backed by the Gemini API.
//
// Gemini differs from the OpenAI wire shape in two ways the adapter papers
// over: system text travels as a separate system instruction rather than a
// context message, and function calls arrive whole instead of fragmented,
// so each one becomes a single complete ToolDelta.
type Google struct {
	client *genai.Client
	logger log.Logger
}

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey string
}

// NewGoogle creates the Gemini gateway.
func NewGoogle(ctx context.Context, cfg GoogleConfig, logger log.Logger) (*Google, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Google{client: client, logger: logger}, nil
}

// Complete implements Gateway.
func (g *Google) Complete(ctx context.Context, req Request) (string, error) {
	contents, cfg, err := g.buildRequest(req)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCompletion
	}
	return resp.Text(), nil
}

// Stream implements Gateway.
func (g *Google) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		contents, cfg, err := g.buildRequest(req)
		if err != nil {
			yield(Fragment{}, err)
			return
		}

		toolIndex := 0
		for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				yield(Fragment{}, fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			for _, part := range resp.Candidates[0].Content.Parts {
				switch {
				case part.Text != "":
					if !yield(Fragment{Text: part.Text}, nil) {
						return
					}
				case part.FunctionCall != nil:
					frag, ferr := functionCallFragment(part.FunctionCall, toolIndex)
					if ferr != nil {
						yield(Fragment{}, ferr)
						return
					}
					toolIndex++
					if !yield(frag, nil) {
						return
					}
				}
			}
		}
	}
}

// functionCallFragment converts a complete Gemini function call into one
// self-contained tool delta.
func functionCallFragment(fc *genai.FunctionCall, index int) (Fragment, error) {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		return Fragment{}, fmt.Errorf("failed to marshal function call args: %w", err)
	}

	id := fc.ID
	if id == "" {
		// Gemini omits call IDs; synthesize a stable one for the round-trip.
		id = fmt.Sprintf("call_%d", index)
	}

	return Fragment{Tool: &ToolDelta{
		Index:     index,
		ID:        id,
		Name:      fc.Name,
		Arguments: string(args),
	}}, nil
}

func (g *Google) buildRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Params.Temperature),
		MaxOutputTokens: int32(req.Params.MaxTokens), // #nosec G115 -- validated positive and small
	}

	for _, t := range req.Tools {
		decl := &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		}
		if len(cfg.Tools) == 0 {
			cfg.Tools = []*genai.Tool{{}}
		}
		cfg.Tools[0].FunctionDeclarations = append(cfg.Tools[0].FunctionDeclarations, decl)
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)

		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					return nil, nil, fmt.Errorf("failed to unmarshal tool call args: %w", err)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, content)

		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     toolNameForCall(req.Messages, msg.ToolCallID),
						Response: map[string]any{"output": msg.Content},
					},
				}},
			})

		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return contents, cfg, nil
}

// toolNameForCall finds the function name behind a tool call ID so the
// FunctionResponse can reference it; Gemini matches responses by name.
func toolNameForCall(messages []Message, callID string) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == callID {
				return tc.Name
			}
		}
	}
	return ""
}

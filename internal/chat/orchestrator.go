// Package chat drives a chat turn end to end: persist the user message,
// assemble context, stream the provider response, splice in at most one
// tool round-trip, and persist the assistant reply exactly once.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lethehaiau/floatplane-zero-agent/internal/log"
	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
	"github.com/lethehaiau/floatplane-zero-agent/internal/store"
	"github.com/lethehaiau/floatplane-zero-agent/internal/tools"
)

// ConversationStore is the persistence surface the orchestrator needs.
// Defined here so tests can substitute an in-memory fake.
type ConversationStore interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
	SaveExchange(ctx context.Context, user, assistant *store.Message) error
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*store.Message, error)
	ListFiles(ctx context.Context, sessionID uuid.UUID) ([]*store.File, error)
}

// Orchestrator runs chat turns. It is stateless between turns and safe for
// concurrent use; the store is the only shared resource.
type Orchestrator struct {
	store     ConversationStore
	providers *provider.Registry
	tools     *tools.Registry
	limiter   *rate.Limiter
	params    provider.Params
	logger    log.Logger
}

// New creates an Orchestrator. limiter throttles outbound provider calls
// across all turns; params apply to every provider request.
func New(cs ConversationStore, providers *provider.Registry, tr *tools.Registry, limiter *rate.Limiter, params provider.Params, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		store:     cs,
		providers: providers,
		tools:     tr,
		limiter:   limiter,
		params:    params,
		logger:    logger,
	}
}

// StreamTurn runs one streaming chat turn for an existing session.
//
// Event order: user_message, zero or more content_delta, then exactly one
// of done or error. The user message is persisted before the provider is
// invoked and survives any later failure; the assistant message is written
// once, after streaming ends. A caller disconnect (emit error or context
// cancellation) discards accumulated text without persisting it.
func (o *Orchestrator) StreamTurn(ctx context.Context, sess *store.Session, content string, meta *store.MessageMetadata, emit EmitFunc) error {
	user := &store.Message{
		SessionID: sess.ID,
		Role:      provider.RoleUser,
		Content:   content,
		Metadata:  meta,
	}
	if err := o.store.SaveMessage(ctx, user); err != nil {
		return o.fail(emit, "failed to save message", err)
	}
	if err := emit(Event{Type: EventUserMessage, Payload: user}); err != nil {
		return err
	}

	msgs, files, err := o.loadContext(ctx, sess.ID)
	if err != nil {
		return o.fail(emit, "failed to load conversation", err)
	}
	msgCtx := BuildContext(msgs, files)

	gw, err := o.providers.Get(sess.LLMProvider)
	if err != nil {
		return o.fail(emit, fmt.Sprintf("unknown provider %q", sess.LLMProvider), err)
	}

	var acc strings.Builder
	var calls toolCallBuffer

	err = o.forward(ctx, gw, provider.Request{
		Model:    sess.LLMModel,
		Messages: msgCtx,
		Tools:    o.tools.Schemas(),
		Params:   o.params,
	}, &acc, &calls, emit)
	if err != nil {
		return o.fail(emit, "generation failed", err)
	}

	if len(calls.calls) > 0 {
		msgCtx = o.dispatchTools(ctx, msgCtx, calls.calls)

		// Only the post-tool round's text becomes the saved reply; any text
		// the model produced before calling the tool is discarded.
		acc.Reset()
		err = o.forward(ctx, gw, provider.Request{
			Model:    sess.LLMModel,
			Messages: msgCtx,
			Params:   o.params,
		}, &acc, nil, emit)
		if err != nil {
			return o.fail(emit, "generation failed", err)
		}
	}

	if ctx.Err() != nil {
		// Caller is gone; drop the accumulated text rather than persisting a
		// reply nobody received.
		return ctx.Err()
	}

	assistant := &store.Message{
		SessionID: sess.ID,
		Role:      provider.RoleAssistant,
		Content:   acc.String(),
	}
	if err := o.store.SaveMessage(ctx, assistant); err != nil {
		return o.fail(emit, "failed to save response", err)
	}

	return emit(Event{Type: EventDone, Payload: Done{MessageID: assistant.ID, Message: assistant}})
}

// Turn runs one non-streaming chat turn. The user and assistant messages
// are persisted atomically after the provider succeeds, so a provider
// failure leaves no orphaned user message.
func (o *Orchestrator) Turn(ctx context.Context, sess *store.Session, content string, meta *store.MessageMetadata) (*store.Message, *store.Message, error) {
	msgs, files, err := o.loadContext(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}

	user := &store.Message{
		SessionID: sess.ID,
		Role:      provider.RoleUser,
		Content:   content,
		Metadata:  meta,
	}
	msgCtx := append(BuildContext(msgs, files), provider.Message{Role: provider.RoleUser, Content: content})

	gw, err := o.providers.Get(sess.LLMProvider)
	if err != nil {
		return nil, nil, err
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	text, err := gw.Complete(ctx, provider.Request{
		Model:    sess.LLMModel,
		Messages: msgCtx,
		Params:   o.params,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("completion failed: %w", err)
	}

	assistant := &store.Message{
		SessionID: sess.ID,
		Role:      provider.RoleAssistant,
		Content:   text,
	}
	if err := o.store.SaveExchange(ctx, user, assistant); err != nil {
		return nil, nil, err
	}
	return user, assistant, nil
}

func (o *Orchestrator) loadContext(ctx context.Context, sessionID uuid.UUID) ([]*store.Message, []*store.File, error) {
	msgs, err := o.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	files, err := o.store.ListFiles(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return msgs, files, nil
}

// forward consumes one provider stream, appending text to acc and emitting
// a content_delta per text fragment. Tool deltas are buffered into calls;
// when calls is nil (the post-tool round offers no tools) a stray tool
// delta is logged and dropped.
func (o *Orchestrator) forward(ctx context.Context, gw provider.Gateway, req provider.Request, acc *strings.Builder, calls *toolCallBuffer, emit EmitFunc) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	for frag, err := range gw.Stream(ctx, req) {
		if err != nil {
			return err
		}

		switch {
		case frag.Tool != nil:
			if calls == nil {
				o.logger.Warn("ignoring tool call in final round", "tool", frag.Tool.Name)
				continue
			}
			if err := calls.add(*frag.Tool); err != nil {
				return err
			}

		case frag.Text != "":
			acc.WriteString(frag.Text)
			if err := emit(Event{Type: EventContentDelta, Payload: Delta{Chunk: frag.Text}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchTools executes the buffered calls sequentially and appends, per
// known tool, an assistant message recording the invocation and a tool
// message carrying the result. Unknown tool names add nothing. Tool
// failures never abort the turn; the tool contract degrades them to an
// empty result.
func (o *Orchestrator) dispatchTools(ctx context.Context, msgCtx []provider.Message, calls []provider.ToolCall) []provider.Message {
	for _, call := range calls {
		tool, ok := o.tools.Get(call.Name)
		if !ok {
			o.logger.Warn("model requested unknown tool", "tool", call.Name)
			continue
		}

		o.logger.Debug("executing tool", "tool", call.Name, "call_id", call.ID)
		result := tool.Execute(ctx, call.Arguments)

		msgCtx = append(msgCtx,
			provider.Message{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{call}},
			provider.Message{Role: provider.RoleTool, ToolCallID: call.ID, Content: result},
		)
	}
	return msgCtx
}

// fail logs the cause, emits a terminal error event with the public detail,
// and returns the cause for the caller's logs.
func (o *Orchestrator) fail(emit EmitFunc, detail string, err error) error {
	o.logger.Error("chat turn failed", "detail", detail, "error", err)
	if emitErr := emit(Event{Type: EventError, Payload: ErrorDetail{Detail: detail}}); emitErr != nil {
		return emitErr
	}
	return err
}

// toolCallBuffer accumulates streamed tool-call deltas by index. The first
// delta for an index establishes the call's ID and name; later deltas for
// that index append argument text. Calls keep first-appearance order.
type toolCallBuffer struct {
	calls []provider.ToolCall
	slot  map[int]int
}

func (b *toolCallBuffer) add(d provider.ToolDelta) error {
	if b.slot == nil {
		b.slot = make(map[int]int)
	}

	if i, ok := b.slot[d.Index]; ok {
		b.calls[i].Arguments += d.Arguments
		return nil
	}

	if d.Name == "" {
		return fmt.Errorf("malformed tool call fragment: continuation for unknown index %d", d.Index)
	}
	b.slot[d.Index] = len(b.calls)
	b.calls = append(b.calls, provider.ToolCall{ID: d.ID, Name: d.Name, Arguments: d.Arguments})
	return nil
}

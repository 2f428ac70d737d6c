// Package provider defines the Upstream Adapter contract (C5): the
// capability-set interface every concrete provider (openai, azure, cohere)
// implements, and the OpenAI-shaped wire types the rest of the engine
// builds on.
//
// Streaming is a pull contract (ChunkStream.Next), not a goroutine feeding
// a channel: the core has no internal thread pool and no background
// workers, so the adapter hands the caller a cursor over the upstream
// response body instead of racing ahead of it.
package provider

import (
	"context"

	"github.com/dispatchlab/llmengine/internal/catalog"
)

// Provider is the interface every upstream adapter satisfies. Go interfaces
// are implicit — openai.Adapter, azure.Adapter, and cohere.Adapter each
// implement this without declaring it.
type Provider interface {
	// ID returns the provider's registry id, e.g. "openai" or "azure".
	ID() string

	// ValidateParameters checks and normalizes a call's raw parameter map
	// against this provider's own schema, returning an apierr.ValidationError
	// on any out-of-range or unrecognized field. The returned value is
	// opaque outside this provider — only its ChatCompletion/OpenStream know
	// how to read it back.
	ValidateParameters(raw map[string]any) (any, error)

	// ChatCompletion performs one non-streaming call.
	ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []Message, params any) (*UpstreamCompletion, error)

	// OpenStream begins a streaming call and returns a pull cursor over its
	// chunks. The caller drives it with repeated Next calls and must Close
	// it exactly once, whether drained to completion or abandoned early.
	OpenStream(ctx context.Context, model catalog.ModelConfig, messages []Message, params any) (ChunkStream, error)
}

// Message is the provider-neutral request message the engine hands to an
// adapter after validation: role plus flattened text content.
type Message struct {
	Role    string
	Content string
}

// ChunkStream is a pull cursor over one streaming call's chunks.
type ChunkStream interface {
	// Next blocks until the next chunk is available, the stream ends
	// (io.EOF), or ctx is done. It reads on the caller's goroutine, only
	// until one chunk is complete (skipping non-data lines); nothing reads
	// ahead in the background between calls.
	Next(ctx context.Context) (*UpstreamChunk, error)

	// Close releases the underlying response body. Safe to call more than
	// once; only the first call has effect.
	Close() error
}

// UpstreamCompletion is the OpenAI-shaped non-streaming response body,
// reused as-is for Azure (identical wire shape) and translated into by the
// Cohere adapter.
type UpstreamCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	// Raw carries every field the upstream returned, including ones not
	// modeled above, so the envelope can merge them verbatim.
	Raw map[string]any `json:"-"`
}

// Choice is one non-streaming completion choice.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage is the assistant message of a non-streaming choice.
type ChoiceMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is the upstream's reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UpstreamChunk is one OpenAI-shaped `chat.completion.chunk` SSE event.
type UpstreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`

	Raw map[string]any `json:"-"`
}

// ChunkChoice is one choice of a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of one streaming chunk choice.
type Delta struct {
	Role         string             `json:"role,omitempty"`
	Content      string             `json:"content,omitempty"`
	ToolCalls    []ToolCallDelta    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCallDelta `json:"function_call,omitempty"`
}

// ToolCall is a complete tool call as returned by a non-streaming choice.
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function payload of a ToolCall.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallDelta is one incremental tool-call fragment in a streaming
// chunk's delta: id/name/type are only present on the first chunk of a
// given tool call; arguments arrive fragment by fragment across subsequent
// chunks (the Joiner's "tool_calls" branch reassembles them).
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallDelta `json:"function"`
}

// FunctionCallDelta is the incremental function-call fragment carried
// either inside a ToolCallDelta or directly on Delta.FunctionCall (the
// legacy function_call joiner branch).
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

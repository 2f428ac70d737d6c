// Joiner implements the Chunk Joiner (C8): reconstruction of a single
// logical completion from a stream's accumulated raw chunks, across the
// three terminal finish_reason modes.
package streamengine

import (
	"strings"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/provider"
)

// Joined is C8's output: the synthesized completion plus the raw assembled
// content string, which C9 tokenizes for output-token counting.
type Joined struct {
	Completion provider.ChoiceMessage
	RawContent string
}

// skipFirstChunk reports whether providerID's streams carry a role-marker-
// only first chunk with no content (OpenAI/Azure) that the "stop"/"length"
// join must skip over.
func skipFirstChunk(providerID string) bool {
	return providerID == "openai" || providerID == "azure"
}

// Join inspects the finish_reason of the last accumulated chunk and
// reconstructs the logical completion (spec §4.7).
func Join(providerID string, chunks []*provider.UpstreamChunk) (*Joined, error) {
	if len(chunks) == 0 {
		return nil, &apierr.ProtocolError{Provider: providerID, Message: "stream ended with no chunks"}
	}
	last := chunks[len(chunks)-1]
	if len(last.Choices) == 0 || last.Choices[0].FinishReason == nil {
		return nil, &apierr.ProtocolError{Provider: providerID, Message: "terminal chunk carries no finish_reason"}
	}

	switch *last.Choices[0].FinishReason {
	case "stop", "length":
		return joinText(providerID, chunks)
	case "tool_calls":
		return joinToolCalls(providerID, chunks)
	case "function_call":
		return joinFunctionCall(providerID, chunks)
	default:
		return nil, &apierr.ProtocolError{Provider: providerID, Message: "unrecognized finish_reason: " + *last.Choices[0].FinishReason}
	}
}

func joinText(providerID string, chunks []*provider.UpstreamChunk) (*Joined, error) {
	start := 0
	if skipFirstChunk(providerID) {
		start = 1
	}
	var b strings.Builder
	for i := start; i < len(chunks); i++ {
		if len(chunks[i].Choices) == 0 {
			continue
		}
		b.WriteString(chunks[i].Choices[0].Delta.Content)
	}
	content := b.String()
	return &Joined{
		Completion: provider.ChoiceMessage{Role: "assistant", Content: content},
		RawContent: content,
	}, nil
}

func joinToolCalls(providerID string, chunks []*provider.UpstreamChunk) (*Joined, error) {
	var id, typ, name string
	var args strings.Builder
	first := true
	for _, c := range chunks {
		if len(c.Choices) == 0 || len(c.Choices[0].Delta.ToolCalls) == 0 {
			continue
		}
		tc := c.Choices[0].Delta.ToolCalls[0]
		if first {
			id = tc.ID
			typ = tc.Type
			name = tc.Function.Name
			first = false
		}
		args.WriteString(tc.Function.Arguments)
	}
	if first {
		return nil, &apierr.ProtocolError{Provider: providerID, Message: "tool_calls finish with no tool_calls deltas"}
	}
	return &Joined{
		Completion: provider.ChoiceMessage{
			Role: "assistant",
			ToolCalls: []provider.ToolCall{{
				ID:       id,
				Type:     typ,
				Function: provider.FunctionCall{Name: name, Arguments: args.String()},
			}},
		},
		RawContent: args.String(),
	}, nil
}

func joinFunctionCall(providerID string, chunks []*provider.UpstreamChunk) (*Joined, error) {
	var name string
	var args strings.Builder
	first := true
	for _, c := range chunks {
		if len(c.Choices) == 0 || c.Choices[0].Delta.FunctionCall == nil {
			continue
		}
		fc := c.Choices[0].Delta.FunctionCall
		if first {
			name = fc.Name
			first = false
		}
		args.WriteString(fc.Arguments)
	}
	if first {
		return nil, &apierr.ProtocolError{Provider: providerID, Message: "function_call finish with no function_call deltas"}
	}
	return &Joined{
		Completion: provider.ChoiceMessage{
			Role: "assistant",
			ToolCalls: []provider.ToolCall{{
				Type:     "function",
				Function: provider.FunctionCall{Name: name, Arguments: args.String()},
			}},
		},
		RawContent: args.String(),
	}, nil
}

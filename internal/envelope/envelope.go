// Package envelope defines the canonical response shape the engine returns
// for both one-shot completions and (per chunk, then once more on join)
// streaming responses.
//
// The Python original builds this by dict-spreading the upstream
// completion's own fields together with engine-added fields. Go has no
// object spread, so Envelope keeps the upstream fields in its Raw map and
// MarshalJSON merges them with the engine fields into one flat object —
// same wire shape, built by hand instead of by spread.
package envelope

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/metrics"
)

// Envelope is the canonical engine response (spec §3/§6).
//
// ChatInput holds the original input if it was a string, else the content
// of the last message (spec §3) — both cases collapse to the same
// string-or-parts shape as chatrequest.MessageContent, so it's reused here
// rather than duplicating the sum type. ChatOutput holds the completion text
// on a non-stream envelope and the delta text on a per-chunk stream
// envelope; it is nil on a stream's terminator envelope, and that absence
// is encoded as JSON null, not omitted, so it stays a *string rather than
// using omitempty.
type Envelope struct {
	ID         string                    `json:"id"`
	ChatInput  chatrequest.MessageContent `json:"chat_input"`
	ChatOutput *string                   `json:"chat_output"`
	Context    []chatrequest.Message     `json:"context,omitempty"`
	Provider   string                    `json:"provider"`
	Model      string                    `json:"model"`
	Deployment string                    `json:"deployment,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
	Parameters map[string]any            `json:"parameters,omitempty"`
	Metrics    *metrics.Metrics          `json:"metrics,omitempty"`

	// Raw carries whatever upstream-completion fields the provider adapter
	// returned verbatim (id, object, created, model, choices, usage, ...).
	// It is merged flat into the marshaled object alongside the engine
	// fields above; engine fields win on key collision.
	Raw map[string]any `json:"-"`
}

// engineKeys are the field names Envelope itself owns; Raw is stripped of
// these before the merge so a provider echoing e.g. "model" never shadows
// the engine's own value.
var engineKeys = map[string]struct{}{
	"id": {}, "chat_input": {}, "chat_output": {}, "context": {},
	"provider": {}, "model": {}, "deployment": {}, "timestamp": {},
	"parameters": {}, "metrics": {},
}

// BuildContext returns the original message sequence for the envelope's
// context field (spec §3 "context"): the input's messages as given, or, for
// a plain-string input, that string wrapped as a single user turn.
func BuildContext(input chatrequest.ChatInput) []chatrequest.Message {
	if input.Text != nil {
		return []chatrequest.Message{{Role: "user", Content: chatrequest.MessageContent{Text: input.Text}}}
	}
	return input.Messages
}

// ResolveModel picks the envelope's model/deployment pair from the model
// name the caller requested and the one the upstream actually reported
// (spec §3 "model"/"deployment"): when the upstream name starts with the
// requested name (e.g. Azure echoing a dated snapshot of the requested
// model), the requested name is the canonical model and the upstream name
// becomes the deployment; otherwise the upstream name (or, failing that,
// the requested one) is the model, and the deployment is the requested name
// only when it actually differs from the upstream.
func ResolveModel(requested, upstream string) (model, deployment string) {
	if upstream != "" && strings.HasPrefix(upstream, requested) {
		return requested, upstream
	}
	model = upstream
	if model == "" {
		model = requested
	}
	if upstream != requested {
		deployment = requested
	}
	return model, deployment
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Raw)+8)
	for k, v := range e.Raw {
		if _, owned := engineKeys[k]; !owned {
			out[k] = v
		}
	}
	out["id"] = e.ID
	out["chat_input"] = e.ChatInput
	if e.ChatOutput != nil {
		out["chat_output"] = *e.ChatOutput
	} else {
		out["chat_output"] = nil
	}
	if len(e.Context) > 0 {
		out["context"] = e.Context
	}
	out["provider"] = e.Provider
	out["model"] = e.Model
	if e.Deployment != "" {
		out["deployment"] = e.Deployment
	}
	out["timestamp"] = e.Timestamp
	if len(e.Parameters) > 0 {
		out["parameters"] = e.Parameters
	}
	if e.Metrics != nil {
		out["metrics"] = e.Metrics
	}
	return json.Marshal(out)
}

// Package engine wires together the Provider Registry, Model Catalog,
// Tokenizer Accessor, Request Validation, Response Normalizer, Stream
// Normalizer, Chunk Joiner, Metrics Engine, and Retry Controller into the
// engine's four external operations.
//
// Dual sync/async surface: Chat/ChatStream and AChat/AChatStream are built
// over the identical internal step — ChatStream and AChatStream both
// return an iter.Seq2[*envelope.Envelope, error], the standard-library
// range-over-func iterator. AChat/AChatStream are the cooperative-
// suspending surface for a caller embedding the engine inside its own
// scheduler; they share every byte of Joiner and Metrics code with the
// blocking surface, never a separate implementation.
package engine

import (
	"context"
	"iter"
	"time"

	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/envelope"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/dispatchlab/llmengine/internal/registry"
	"github.com/dispatchlab/llmengine/internal/streamengine"
	"github.com/dispatchlab/llmengine/internal/tokenizer"
	"github.com/dispatchlab/llmengine/internal/validate"
)

// Engine is the top-level entry point. Its three dependencies are
// read-only after construction and safely shared across concurrent calls
// (spec §4.12); no other mutable state lives on it.
type Engine struct {
	Registry  *registry.Registry
	Catalog   *catalog.Catalog
	Tokenizer *tokenizer.Accessor
}

// New builds an Engine over an already-populated registry and catalog.
func New(reg *registry.Registry, cat *catalog.Catalog, tok *tokenizer.Accessor) *Engine {
	return &Engine{Registry: reg, Catalog: cat, Tokenizer: tok}
}

func (e *Engine) resolve(providerID string, req chatrequest.ChatRequest) (provider.Provider, catalog.ModelConfig, *chatrequest.ValidatedRequest, error) {
	cfg, err := e.Catalog.Provider(providerID)
	if err != nil {
		return nil, catalog.ModelConfig{}, nil, err
	}
	p, err := e.Registry.Build(providerID, cfg)
	if err != nil {
		return nil, catalog.ModelConfig{}, nil, err
	}
	model, err := e.Catalog.Lookup(providerID, req.Model)
	if err != nil {
		return nil, catalog.ModelConfig{}, nil, err
	}
	vr, err := validate.Validate(req, providerID, e.Catalog, p)
	if err != nil {
		return nil, catalog.ModelConfig{}, nil, err
	}
	return p, model, vr, nil
}

func toProviderMessages(input chatrequest.ChatInput) []provider.Message {
	if input.Text != nil {
		return []provider.Message{{Role: "user", Content: *input.Text}}
	}
	msgs := make([]provider.Message, 0, len(input.Messages))
	for _, m := range input.Messages {
		msgs = append(msgs, provider.Message{Role: m.Role, Content: flattenContent(m.Content)})
	}
	return msgs
}

func flattenContent(c chatrequest.MessageContent) string {
	if c.Text != nil {
		return *c.Text
	}
	var out string
	for _, part := range c.Parts {
		if part.Type == "text" {
			out += part.Text
		}
	}
	return out
}

// Chat performs one non-streaming call (blocking surface).
func (e *Engine) Chat(ctx context.Context, providerID string, req chatrequest.ChatRequest) (*envelope.Envelope, error) {
	return e.chat(ctx, providerID, req)
}

// AChat is the cooperative-suspending surface for non-streaming calls. It
// shares chat's single suspension point (the one upstream round trip) with
// Chat — there is no separate async implementation.
func (e *Engine) AChat(ctx context.Context, providerID string, req chatrequest.ChatRequest) (*envelope.Envelope, error) {
	return e.chat(ctx, providerID, req)
}

func (e *Engine) chat(ctx context.Context, providerID string, req chatrequest.ChatRequest) (*envelope.Envelope, error) {
	p, model, vr, err := e.resolve(providerID, req)
	if err != nil {
		return nil, err
	}
	messages := toProviderMessages(vr.ChatInput)
	start := time.Now()

	completion, err := withRetry(ctx, vr.Retries, func(ctx context.Context) (*provider.UpstreamCompletion, error) {
		return p.ChatCompletion(ctx, model, messages, vr.ProviderParameters)
	})
	if err != nil {
		return nil, err
	}
	return normalizeNonStream(providerID, model, vr, completion, start), nil
}

// ChatStream performs a streaming call and returns a lazily-pulled sequence
// of canonical envelopes (blocking surface).
func (e *Engine) ChatStream(ctx context.Context, providerID string, req chatrequest.ChatRequest) (iter.Seq2[*envelope.Envelope, error], error) {
	return e.chatStream(ctx, providerID, req)
}

// AChatStream is the cooperative-suspending streaming surface: identical
// iter.Seq2 shape, documented as the async-iterator-equivalent for a
// caller driving one step per turn of its own event loop instead of
// draining to completion in one blocking range.
func (e *Engine) AChatStream(ctx context.Context, providerID string, req chatrequest.ChatRequest) (iter.Seq2[*envelope.Envelope, error], error) {
	return e.chatStream(ctx, providerID, req)
}

func (e *Engine) chatStream(ctx context.Context, providerID string, req chatrequest.ChatRequest) (iter.Seq2[*envelope.Envelope, error], error) {
	p, model, vr, err := e.resolve(providerID, req)
	if err != nil {
		return nil, err
	}
	messages := toProviderMessages(vr.ChatInput)
	start := time.Now()

	tok, err := e.Tokenizer.Resolve(providerID, nil)
	if err != nil {
		return nil, err
	}

	// Retry applies only to opening the stream. Once the first chunk has
	// been emitted to the caller, no error is retried — it terminates the
	// stream instead (spec §7 "once the first envelope has been emitted,
	// all errors terminate the stream").
	stream, err := withRetry(ctx, vr.Retries, func(ctx context.Context) (provider.ChunkStream, error) {
		return p.OpenStream(ctx, model, messages, vr.ProviderParameters)
	})
	if err != nil {
		return nil, err
	}

	norm := streamengine.NewNormalizer(providerID, model, vr, tok, start, stream)

	return func(yield func(*envelope.Envelope, error) bool) {
		defer norm.Close()
		for {
			env, ok, stepErr := norm.Step(ctx)
			if stepErr != nil {
				// No retry once a stream is open (spec §7): any error
				// here terminates the stream for good.
				yield(nil, stepErr)
				return
			}
			if env != nil {
				if !yield(env, nil) {
					return
				}
			}
			if !ok {
				return
			}
		}
	}, nil
}

// Package streamengine implements the Stream Normalizer (C7) and Chunk
// Joiner (C8): turning a provider's pull ChunkStream into an ordered
// sequence of canonical envelopes.
package streamengine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/envelope"
	"github.com/dispatchlab/llmengine/internal/metrics"
	"github.com/dispatchlab/llmengine/internal/provider"
)

// Normalizer drives one streaming call end to end (spec §4.6). It holds no
// state beyond one call — every field below is request-scoped and never
// shared across calls (spec §4.12).
type Normalizer struct {
	ProviderID string
	Model      catalog.ModelConfig
	Request    *chatrequest.ValidatedRequest
	Tokenizer  metrics.Tokenizer
	Start      time.Time

	stream provider.ChunkStream
	accum  *metrics.StreamAccumulator
	chunks []*provider.UpstreamChunk
	model  string
	id     string
}

// NewNormalizer begins normalizing one stream.
func NewNormalizer(providerID string, model catalog.ModelConfig, req *chatrequest.ValidatedRequest, tok metrics.Tokenizer, start time.Time, stream provider.ChunkStream) *Normalizer {
	return &Normalizer{
		ProviderID: providerID,
		Model:      model,
		Request:    req,
		Tokenizer:  tok,
		Start:      start,
		stream:     stream,
		accum:      metrics.NewStreamAccumulator(start),
		// Falls back to a generated id when the upstream never echoes one
		// (Cohere's generate stream carries no per-event call id).
		id: uuid.NewString(),
	}
}

// Step performs exactly one upstream read and returns the envelope it
// produces, if any. ok is false once the terminator has been emitted or an
// error occurred; the caller must not call Step again after ok is false.
func (n *Normalizer) Step(ctx context.Context) (env *envelope.Envelope, ok bool, err error) {
	chunk, err := n.stream.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			env, err := n.finish()
			return env, false, err
		}
		if ctx.Err() != nil {
			return nil, false, &apierr.CancelledError{Cause: ctx.Err()}
		}
		return nil, false, err
	}

	n.accum.Observe(time.Now())
	n.chunks = append(n.chunks, chunk)
	if n.model == "" && chunk.Model != "" {
		n.model = chunk.Model
	}
	if chunk.ID != "" {
		n.id = chunk.ID
	}

	if len(chunk.Choices) == 0 {
		return nil, true, nil
	}
	if chunk.Choices[0].FinishReason != nil {
		// Terminal marker: consumed by the Joiner, not emitted as its own
		// per-chunk envelope (spec §4.6).
		return nil, true, nil
	}

	content := chunk.Choices[0].Delta.Content
	return n.chunkEnvelope(content), true, nil
}

func (n *Normalizer) chunkEnvelope(content string) *envelope.Envelope {
	model, deployment := envelope.ResolveModel(n.Request.Model, n.model)
	return &envelope.Envelope{
		ID:         n.id,
		ChatInput:  n.Request.ChatInput.LastContent(),
		ChatOutput: &content,
		Context:    envelope.BuildContext(n.Request.ChatInput),
		Provider:   n.ProviderID,
		Model:      model,
		Deployment: deployment,
		Timestamp:  time.Now(),
		Parameters: n.Request.Parameters,
	}
}

// finish is called once the upstream stream has ended (io.EOF): it invokes
// the Joiner, computes final metrics via C9, and returns the terminator
// envelope.
func (n *Normalizer) finish() (*envelope.Envelope, error) {
	joined, err := Join(n.ProviderID, n.chunks)
	if err != nil {
		return nil, err
	}

	inputTokens := metrics.TokenCount(n.Tokenizer, metrics.CanonicalInput(n.Request.ChatInput))
	outputTokens := metrics.TokenCount(n.Tokenizer, joined.RawContent)
	m := n.accum.Finalize(n.Model, inputTokens, outputTokens, time.Now())
	model, deployment := envelope.ResolveModel(n.Request.Model, n.model)

	return &envelope.Envelope{
		ID:         n.id,
		ChatInput:  n.Request.ChatInput.LastContent(),
		ChatOutput: nil,
		Context:    envelope.BuildContext(n.Request.ChatInput),
		Provider:   n.ProviderID,
		Model:      model,
		Deployment: deployment,
		Timestamp:  time.Now(),
		Parameters: n.Request.Parameters,
		Metrics:    m,
	}, nil
}

// Close releases the underlying upstream stream. Safe to call more than
// once.
func (n *Normalizer) Close() error {
	return n.stream.Close()
}

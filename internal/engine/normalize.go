package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/envelope"
	"github.com/dispatchlab/llmengine/internal/metrics"
	"github.com/dispatchlab/llmengine/internal/provider"
)

// normalizeNonStream implements the Response Normalizer (C6): wraps an
// upstream completion in the canonical envelope with metrics (spec §4.5).
func normalizeNonStream(providerID string, model catalog.ModelConfig, req *chatrequest.ValidatedRequest, completion *provider.UpstreamCompletion, start time.Time) *envelope.Envelope {
	m := metrics.NonStream(model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens, start)

	var content string
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}

	id := completion.ID
	if id == "" {
		// Not every adapter's wire shape echoes a call id (e.g. Cohere's
		// generate response carries its own, but an empty one is still
		// possible on malformed or mocked upstreams).
		id = uuid.NewString()
	}

	resolvedModel, deployment := envelope.ResolveModel(req.Model, completion.Model)

	return &envelope.Envelope{
		ID:         id,
		ChatInput:  req.ChatInput.LastContent(),
		ChatOutput: &content,
		Context:    envelope.BuildContext(req.ChatInput),
		Provider:   providerID,
		Model:      resolvedModel,
		Deployment: deployment,
		Timestamp:  time.Now(),
		Parameters: req.Parameters,
		Metrics:    m,
		Raw:        completion.Raw,
	}
}

package engine

import (
	"context"
	"io"
	"testing"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/dispatchlab/llmengine/internal/registry"
	"github.com/dispatchlab/llmengine/internal/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	completionCalls int
	completions     []result
	streams         []provider.ChunkStream
}

type result struct {
	completion *provider.UpstreamCompletion
	err        error
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) ValidateParameters(raw map[string]any) (any, error) { return raw, nil }

func (p *scriptedProvider) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	r := p.completions[p.completionCalls]
	p.completionCalls++
	return r.completion, r.err
}

func (p *scriptedProvider) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	s := p.streams[0]
	p.streams = p.streams[1:]
	return s, nil
}

type fixedStream struct {
	chunks []*provider.UpstreamChunk
	idx    int
}

func (f *fixedStream) Next(ctx context.Context) (*provider.UpstreamChunk, error) {
	if f.idx >= len(f.chunks) {
		return nil, io.EOF
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}

func (f *fixedStream) Close() error { return nil }

func buildEngine(t *testing.T, p provider.Provider) *Engine {
	t.Helper()
	reg := registry.New()
	reg.Register("scripted", func(cfg catalog.ProviderConfig) (provider.Provider, error) { return p, nil })

	f := 0.0
	cat := catalog.New(map[string]catalog.ProviderConfig{
		"scripted": {ProviderID: "scripted", Models: map[string]catalog.ModelConfig{
			"model-a": {Name: "model-a", InputTokenCost: catalog.CostSpec{Scalar: &f}, OutputTokenCost: catalog.CostSpec{Scalar: &f}},
		}},
	})
	return New(reg, cat, tokenizer.NewAccessor())
}

func TestChatHappyPath(t *testing.T) {
	p := &scriptedProvider{completions: []result{
		{completion: &provider.UpstreamCompletion{
			ID:    "chatcmpl-1",
			Model: "model-a-2024",
			Choices: []provider.Choice{{Message: provider.ChoiceMessage{Role: "assistant", Content: "Hi."}}},
			Usage:   provider.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		}},
	}}
	eng := buildEngine(t, p)

	text := "Hello"
	env, err := eng.Chat(context.Background(), "scripted", chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}})
	require.NoError(t, err)
	assert.Equal(t, "Hi.", *env.ChatOutput)
	assert.Equal(t, 2, env.Metrics.TotalTokens)
	assert.Equal(t, 1, p.completionCalls)
	assert.Equal(t, "model-a", env.Model)
	assert.Equal(t, "model-a-2024", env.Deployment)
	require.Len(t, env.Context, 1)
	assert.Equal(t, "user", env.Context[0].Role)
	assert.Equal(t, "Hello", *env.Context[0].Content.Text)
}

func TestChatRetriesOnRateLimitThenSucceeds(t *testing.T) {
	p := &scriptedProvider{completions: []result{
		{err: &apierr.RateLimitedError{Provider: "scripted"}},
		{completion: &provider.UpstreamCompletion{
			ID: "chatcmpl-2", Model: "model-a",
			Choices: []provider.Choice{{Message: provider.ChoiceMessage{Role: "assistant", Content: "ok"}}},
		}},
	}}
	eng := buildEngine(t, p)

	text := "Hello"
	env, err := eng.Chat(context.Background(), "scripted", chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}, Retries: 1})
	require.NoError(t, err)
	assert.Equal(t, "ok", *env.ChatOutput)
	assert.Equal(t, 2, p.completionCalls)
}

func TestChatSurfacesNonRateLimitErrorImmediately(t *testing.T) {
	p := &scriptedProvider{completions: []result{
		{err: &apierr.UpstreamError{Provider: "scripted", StatusCode: 500}},
	}}
	eng := buildEngine(t, p)

	text := "Hello"
	_, err := eng.Chat(context.Background(), "scripted", chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}, Retries: 3})
	var ue *apierr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, p.completionCalls)
}

func TestChatUnsupportedModel(t *testing.T) {
	p := &scriptedProvider{}
	eng := buildEngine(t, p)

	text := "Hello"
	_, err := eng.Chat(context.Background(), "scripted", chatrequest.ChatRequest{Model: "no-such-model", ChatInput: chatrequest.ChatInput{Text: &text}})
	var um *apierr.UnsupportedModelError
	require.ErrorAs(t, err, &um)
}

func TestChatStreamEmitsTerminatorLast(t *testing.T) {
	reasonStop := "stop"
	stream := &fixedStream{chunks: []*provider.UpstreamChunk{
		{Model: "model-a", Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: "H"}}}},
		{Model: "model-a", Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: "i"}}}},
		{Model: "model-a", Choices: []provider.ChunkChoice{{FinishReason: &reasonStop}}},
	}}
	p := &scriptedProvider{streams: []provider.ChunkStream{stream}}
	eng := buildEngine(t, p)

	text := "Hello"
	seq, err := eng.ChatStream(context.Background(), "scripted", chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}, IsStream: true})
	require.NoError(t, err)

	var envs []string
	var metricsSeen bool
	for env, err := range seq {
		require.NoError(t, err)
		require.Len(t, env.Context, 1)
		assert.Equal(t, "Hello", *env.Context[0].Content.Text)
		if env.Metrics != nil {
			metricsSeen = true
			assert.Nil(t, env.ChatOutput)
		} else {
			envs = append(envs, *env.ChatOutput)
		}
	}

	assert.Equal(t, []string{"H", "i"}, envs)
	assert.True(t, metricsSeen)
}

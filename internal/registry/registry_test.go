package registry

import (
	"context"
	"testing"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ id string }

func (f fakeProvider) ID() string { return f.id }

func (f fakeProvider) ValidateParameters(raw map[string]any) (any, error) { return nil, nil }

func (f fakeProvider) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	return nil, nil
}

func (f fakeProvider) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	return nil, nil
}

func TestRegisterAndBuild(t *testing.T) {
	r := New()
	r.Register("stub", func(cfg catalog.ProviderConfig) (provider.Provider, error) {
		return fakeProvider{id: cfg.ProviderID}, nil
	})

	p, err := r.Build("stub", catalog.ProviderConfig{ProviderID: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.ID())
}

func TestBuildUnknownProvider(t *testing.T) {
	r := New()
	_, err := r.Build("missing", catalog.ProviderConfig{})
	var unknown *apierr.UnknownProviderError
	require.ErrorAs(t, err, &unknown)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New()
	factory := func(cfg catalog.ProviderConfig) (provider.Provider, error) { return fakeProvider{}, nil }
	r.Register("dup", factory)
	assert.Panics(t, func() { r.Register("dup", factory) })
}

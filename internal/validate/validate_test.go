package validate

import (
	"context"
	"testing"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ validateErr error }

func (f fakeProvider) ID() string { return "fake" }

func (f fakeProvider) ValidateParameters(raw map[string]any) (any, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	return raw, nil
}

func (f fakeProvider) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	return nil, nil
}

func (f fakeProvider) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	return nil, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New(map[string]catalog.ProviderConfig{
		"fake": {ProviderID: "fake", Models: map[string]catalog.ModelConfig{
			"model-a": {Name: "model-a"},
		}},
	})
}

func TestValidateHappyPath(t *testing.T) {
	text := "hello"
	req := chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}}
	vr, err := Validate(req, "fake", testCatalog(), fakeProvider{})
	require.NoError(t, err)
	assert.Equal(t, "model-a", vr.Model)
}

func TestValidateEmptyModel(t *testing.T) {
	text := "hello"
	req := chatrequest.ChatRequest{Model: "", ChatInput: chatrequest.ChatInput{Text: &text}}
	_, err := Validate(req, "fake", testCatalog(), fakeProvider{})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateUnsupportedModel(t *testing.T) {
	text := "hello"
	req := chatrequest.ChatRequest{Model: "no-such-model", ChatInput: chatrequest.ChatInput{Text: &text}}
	_, err := Validate(req, "fake", testCatalog(), fakeProvider{})
	var um *apierr.UnsupportedModelError
	require.ErrorAs(t, err, &um)
}

func TestValidateMissingChatInput(t *testing.T) {
	req := chatrequest.ChatRequest{Model: "model-a"}
	_, err := Validate(req, "fake", testCatalog(), fakeProvider{})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateNegativeRetries(t *testing.T) {
	text := "hello"
	req := chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}, Retries: -1}
	_, err := Validate(req, "fake", testCatalog(), fakeProvider{})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateDelegatesParameterValidation(t *testing.T) {
	text := "hello"
	req := chatrequest.ChatRequest{Model: "model-a", ChatInput: chatrequest.ChatInput{Text: &text}}
	_, err := Validate(req, "fake", testCatalog(), fakeProvider{validateErr: &apierr.ValidationError{Field: "temperature", Message: "out of range"}})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "temperature", ve.Field)
}

package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/dispatchlab/llmengine/internal/provider/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParametersDelegatesToOpenAI(t *testing.T) {
	a := &Adapter{}
	_, err := a.ValidateParameters(map[string]any{"temperature": 9.0})
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestURLIncludesDeploymentAndAPIVersion(t *testing.T) {
	a := &Adapter{endpoint: "https://acct.openai.azure.com", apiVersion: "2024-02-01"}
	assert.Equal(t, "https://acct.openai.azure.com/openai/deployments/gpt4-prod/chat/completions?api-version=2024-02-01", a.url("gpt4-prod"))
}

func TestOpenStreamYieldsChunksFromDeployment(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"model\":\"\",\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"model\":\"\",\"choices\":[{\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := &Adapter{apiKey: "secret", endpoint: srv.URL, apiVersion: "2024-02-01"}
	stream, err := a.OpenStream(context.Background(), catalog.ModelConfig{Deployment: "gpt4-prod"}, []provider.Message{{Role: "user", Content: "hi"}}, openai.Parameters{})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi", chunk.Choices[0].Delta.Content)

	_, err = stream.Next(context.Background())
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))

	assert.Equal(t, "/openai/deployments/gpt4-prod/chat/completions", gotPath)
}

func TestChatCompletionDefaultsModelToDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	a := &Adapter{client: resty.New(), endpoint: srv.URL, apiVersion: "2024-02-01"}
	completion, err := a.ChatCompletion(context.Background(), catalog.ModelConfig{Deployment: "gpt4-prod"}, []provider.Message{{Role: "user", Content: "hi"}}, openai.Parameters{})
	require.NoError(t, err)
	assert.Equal(t, "gpt4-prod", completion.Model)
}

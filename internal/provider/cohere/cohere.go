// Package cohere implements the Upstream Adapter (C5) for Cohere's Generate
// API, translated into the same OpenAI-shaped canonical completion/chunk
// types every other adapter produces.
//
// Cohere's wire shape is not choice/delta-based like OpenAI's — it's a
// flat generations list for non-stream and a `{text, is_finished}` event
// stream — so this adapter does real translation work instead of passing
// the body straight through, unlike azure's pure reuse of openai's shape.
package cohere

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/provider"
	"github.com/dispatchlab/llmengine/internal/registry"
)

func init() {
	registry.Default.Register("cohere", NewAdapter)
}

const defaultBaseURL = "https://api.cohere.ai/v1"

// Adapter implements provider.Provider for the Cohere Generate API.
type Adapter struct {
	client  *resty.Client
	apiKey  string
	baseURL string
}

// NewAdapter is the factory registered into the process-wide registry.
func NewAdapter(cfg catalog.ProviderConfig) (provider.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		client:  resty.New().SetHeader("Content-Type", "application/json"),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (a *Adapter) ID() string { return "cohere" }

// Parameters is Cohere's CommandParameters schema (grounded on the
// original's pydantic model: temperature 0-5, max_tokens>=1, p in
// [0,0.99], k in [0,500], frequency_penalty>=0, presence_penalty in
// [0,1]).
type Parameters struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	P                float64 `json:"p"`
	K                int     `json:"k"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

func defaultParameters() Parameters {
	return Parameters{Temperature: 0.75, MaxTokens: 256, P: 0, K: 0, FrequencyPenalty: 0, PresencePenalty: 0}
}

// ValidateParameters checks Cohere's CommandParameters ranges.
func (a *Adapter) ValidateParameters(raw map[string]any) (any, error) {
	for k := range raw {
		switch k {
		case "temperature", "max_tokens", "p", "k", "frequency_penalty", "presence_penalty":
		default:
			return nil, &apierr.ValidationError{Field: k, Message: "unrecognized parameter"}
		}
	}
	p := defaultParameters()
	if v, ok := raw["temperature"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 5 {
			return nil, &apierr.ValidationError{Field: "temperature", Message: "must be a number between 0 and 5"}
		}
		p.Temperature = f
	}
	if v, ok := raw["max_tokens"]; ok {
		f, ok := asFloat(v)
		if !ok || int(f) < 1 {
			return nil, &apierr.ValidationError{Field: "max_tokens", Message: "must be an integer >= 1"}
		}
		p.MaxTokens = int(f)
	}
	if v, ok := raw["p"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 0.99 {
			return nil, &apierr.ValidationError{Field: "p", Message: "must be a number between 0 and 0.99"}
		}
		p.P = f
	}
	if v, ok := raw["k"]; ok {
		f, ok := asFloat(v)
		if !ok || int(f) < 0 || int(f) > 500 {
			return nil, &apierr.ValidationError{Field: "k", Message: "must be an integer between 0 and 500"}
		}
		p.K = int(f)
	}
	if v, ok := raw["frequency_penalty"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 {
			return nil, &apierr.ValidationError{Field: "frequency_penalty", Message: "must be a number >= 0"}
		}
		p.FrequencyPenalty = f
	}
	if v, ok := raw["presence_penalty"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 1 {
			return nil, &apierr.ValidationError{Field: "presence_penalty", Message: "must be a number between 0 and 1"}
		}
		p.PresencePenalty = f
	}
	return p, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// flattenPrompt reduces the engine's provider.Message slice to Cohere's
// single `prompt` string, since Generate is not a chat API: every message's
// content, in order, joined with newlines. Roles are dropped.
func flattenPrompt(messages []provider.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

type wireRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Stream           bool    `json:"stream"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	P                float64 `json:"p"`
	K                int     `json:"k"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

func buildRequest(model catalog.ModelConfig, messages []provider.Message, params any, stream bool) wireRequest {
	p, ok := params.(Parameters)
	if !ok {
		p = defaultParameters()
	}
	return wireRequest{
		Model:            model.Name,
		Prompt:           flattenPrompt(messages),
		Stream:           stream,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		P:                p.P,
		K:                p.K,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}
}

type wireGeneration struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type wireResponse struct {
	ID          string           `json:"id"`
	Generations []wireGeneration `json:"generations"`
	Meta        map[string]any   `json:"meta,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
}

func classifyHTTPError(providerID string, status int, body []byte) error {
	var we wireError
	_ = json.Unmarshal(body, &we)
	msg := we.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	if status == http.StatusTooManyRequests {
		return &apierr.RateLimitedError{Provider: providerID, Cause: fmt.Errorf("%s", msg)}
	}
	return &apierr.UpstreamError{Provider: providerID, StatusCode: status, Message: msg}
}

// ChatCompletion performs one non-streaming call and translates Cohere's
// flat generations list into the canonical choices/message shape.
func (a *Adapter) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	body := buildRequest(model, messages, params, false)

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetBody(body).
		Post(a.baseURL + "/generate")
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "request failed", Cause: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyHTTPError(a.ID(), resp.StatusCode(), resp.Body())
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, &apierr.ProtocolError{Provider: a.ID(), Message: "malformed response body: " + err.Error()}
	}
	var wr wireResponse
	if err := json.Unmarshal(resp.Body(), &wr); err != nil {
		return nil, &apierr.ProtocolError{Provider: a.ID(), Message: "malformed response body: " + err.Error()}
	}
	if len(wr.Generations) == 0 {
		return nil, &apierr.ProtocolError{Provider: a.ID(), Message: "response carries no generations"}
	}

	return &provider.UpstreamCompletion{
		ID:    wr.ID,
		Model: model.Name,
		Choices: []provider.Choice{{
			Index:        0,
			Message:      provider.ChoiceMessage{Role: "assistant", Content: wr.Generations[0].Text},
			FinishReason: "stop",
		}},
		Raw: raw,
	}, nil
}

// generateEvent is one line of Cohere's streaming response.
type generateEvent struct {
	Text       string `json:"text"`
	IsFinished bool   `json:"is_finished"`
	Response   *struct {
		ID          string           `json:"id"`
		Generations []wireGeneration `json:"generations"`
	} `json:"response,omitempty"`
}

// genStream is a pull ChunkStream cursor translating Cohere's
// `{text, is_finished}` event stream into OpenAI-shaped UpstreamChunks.
type genStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
	provID  string
	model   string
	id      string
}

func (s *genStream) Next(ctx context.Context) (*provider.UpstreamChunk, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, &apierr.UpstreamError{Provider: s.provID, Message: "stream read error", Cause: err}
		}
		return nil, io.EOF
	}
	line := strings.TrimSpace(s.scanner.Text())
	if line == "" {
		return s.Next(ctx)
	}

	var ev generateEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, &apierr.ProtocolError{Provider: s.provID, Message: "malformed chunk: " + err.Error()}
	}

	if ev.IsFinished {
		reason := "stop"
		return &provider.UpstreamChunk{
			ID:    s.id,
			Model: s.model,
			Choices: []provider.ChunkChoice{{
				Index:        0,
				Delta:        provider.Delta{},
				FinishReason: &reason,
			}},
		}, nil
	}

	return &provider.UpstreamChunk{
		ID:    s.id,
		Model: s.model,
		Choices: []provider.ChunkChoice{{
			Index: 0,
			Delta: provider.Delta{Content: ev.Text},
		}},
	}, nil
}

func (s *genStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// OpenStream begins a streaming call.
func (a *Adapter) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	body := buildRequest(model, messages, params, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/generate", strings.NewReader(string(payload)))
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "stream request failed", Cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var buf [4096]byte
		n, _ := httpResp.Body.Read(buf[:])
		return nil, classifyHTTPError(a.ID(), httpResp.StatusCode, buf[:n])
	}

	return &genStream{
		body:    httpResp.Body,
		scanner: bufio.NewScanner(httpResp.Body),
		provID:  a.ID(),
		model:   model.Name,
	}, nil
}

// Package openai implements the Upstream Adapter (C5) for OpenAI's Chat
// Completions API: go-resty for the one-shot call, a raw bufio.Scanner SSE
// cursor for streaming (go-resty has no streaming response mode).
package openai

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
	registry.Default.Register("openai", NewAdapter)
}

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements provider.Provider for the OpenAI Chat Completions API.
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

func (a *Adapter) ID() string { return "openai" }

// Parameters is OpenAI's validated tuning-knob schema.
type Parameters struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// ValidateParameters checks OpenAI's parameter ranges (spec §4.4 delegates
// range checks to the per-provider schema).
func (a *Adapter) ValidateParameters(raw map[string]any) (any, error) {
	for k := range raw {
		switch k {
		case "temperature", "top_p", "max_tokens", "frequency_penalty", "presence_penalty":
		default:
			return nil, &apierr.ValidationError{Field: k, Message: "unrecognized parameter"}
		}
	}
	p := Parameters{}
	if v, ok := raw["temperature"]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 || f > 2 {
			return nil, &apierr.ValidationError{Field: "temperature", Message: "must be a number between 0 and 2"}
		}
		p.Temperature = &f
	}
	if v, ok := raw["top_p"]; ok {
		f, ok := asFloat(v)
		if !ok || f <= 0 || f > 1 {
			return nil, &apierr.ValidationError{Field: "top_p", Message: "must be a number in (0, 1]"}
		}
		p.TopP = &f
	}
	if v, ok := raw["max_tokens"]; ok {
		f, ok := asFloat(v)
		n := int(f)
		if !ok || n < 1 {
			return nil, &apierr.ValidationError{Field: "max_tokens", Message: "must be an integer >= 1"}
		}
		p.MaxTokens = &n
	}
	if v, ok := raw["frequency_penalty"]; ok {
		f, ok := asFloat(v)
		if !ok || f < -2 || f > 2 {
			return nil, &apierr.ValidationError{Field: "frequency_penalty", Message: "must be a number between -2 and 2"}
		}
		p.FrequencyPenalty = &f
	}
	if v, ok := raw["presence_penalty"]; ok {
		f, ok := asFloat(v)
		if !ok || f < -2 || f > 2 {
			return nil, &apierr.ValidationError{Field: "presence_penalty", Message: "must be a number between -2 and 2"}
		}
		p.PresencePenalty = &f
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

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

func (a *Adapter) buildRequest(model catalog.ModelConfig, messages []provider.Message, params any, stream bool) wireRequest {
	wm := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	req := wireRequest{Model: model.Name, Messages: wm, Stream: stream}
	if p, ok := params.(Parameters); ok {
		req.Temperature = p.Temperature
		req.TopP = p.TopP
		req.MaxTokens = p.MaxTokens
		req.FrequencyPenalty = p.FrequencyPenalty
		req.PresencePenalty = p.PresencePenalty
	}
	return req
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// classifyHTTPError maps an OpenAI-shaped error status/body into the
// engine's closed error taxonomy.
func classifyHTTPError(providerID string, status int, body []byte) error {
	var we wireError
	_ = json.Unmarshal(body, &we)
	msg := we.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	if status == http.StatusTooManyRequests {
		return &apierr.RateLimitedError{Provider: providerID, Cause: fmt.Errorf("%s", msg)}
	}
	return &apierr.UpstreamError{Provider: providerID, StatusCode: status, Message: msg}
}

// ChatCompletion performs one non-streaming call.
func (a *Adapter) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	body := a.buildRequest(model, messages, params, false)

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetBody(body).
		Post(a.baseURL + "/chat/completions")
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
	var completion provider.UpstreamCompletion
	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return nil, &apierr.ProtocolError{Provider: a.ID(), Message: "malformed response body: " + err.Error()}
	}
	completion.Raw = raw
	return &completion, nil
}

// sseStream is a pull ChunkStream cursor over an OpenAI SSE body.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
	provID  string
}

func (s *sseStream) Next(ctx context.Context) (*provider.UpstreamChunk, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil, io.EOF
		}
		var chunk provider.UpstreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, &apierr.ProtocolError{Provider: s.provID, Message: "malformed chunk: " + err.Error()}
		}
		return &chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, &apierr.UpstreamError{Provider: s.provID, Message: "stream read error", Cause: err}
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// OpenStream begins a streaming call.
func (a *Adapter) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	body := a.buildRequest(model, messages, params, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", strings.NewReader(string(payload)))
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

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

	return &sseStream{
		body:    httpResp.Body,
		scanner: bufio.NewScanner(httpResp.Body),
		provID:  a.ID(),
	}, nil
}

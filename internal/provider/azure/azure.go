// Package azure implements the Upstream Adapter (C5) for Azure OpenAI.
// Azure's Chat Completions wire shape is byte-identical to OpenAI's; only
// the URL construction (deployment-scoped, api-version query param) and
// auth header (api-key, not Bearer) differ.
package azure

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
	"github.com/dispatchlab/llmengine/internal/provider/openai"
	"github.com/dispatchlab/llmengine/internal/registry"
)

func init() {
	registry.Default.Register("azure", NewAdapter)
}

// Adapter implements provider.Provider for Azure OpenAI deployments.
type Adapter struct {
	client     *resty.Client
	apiKey     string
	endpoint   string
	apiVersion string
}

// NewAdapter is the factory registered into the process-wide registry.
func NewAdapter(cfg catalog.ProviderConfig) (provider.Provider, error) {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	return &Adapter{
		client:     resty.New().SetHeader("Content-Type", "application/json"),
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.APIEndpoint, "/"),
		apiVersion: apiVersion,
	}, nil
}

func (a *Adapter) ID() string { return "azure" }

// ValidateParameters reuses OpenAI's parameter schema: Azure deployments
// expose the same tuning knobs as the Chat Completions API they wrap.
func (a *Adapter) ValidateParameters(raw map[string]any) (any, error) {
	oa := &openai.Adapter{}
	return oa.ValidateParameters(raw)
}

func (a *Adapter) url(deployment string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", a.endpoint, deployment, a.apiVersion)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Messages         []wireMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

func buildRequest(messages []provider.Message, params any, stream bool) wireRequest {
	wm := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	req := wireRequest{Messages: wm, Stream: stream}
	if p, ok := params.(openai.Parameters); ok {
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

// ChatCompletion performs one non-streaming call against a deployment.
func (a *Adapter) ChatCompletion(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (*provider.UpstreamCompletion, error) {
	body := buildRequest(messages, params, false)

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("api-key", a.apiKey).
		SetBody(body).
		Post(a.url(model.Deployment))
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
	if completion.Model == "" {
		completion.Model = model.Deployment
	}
	return &completion, nil
}

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

// OpenStream begins a streaming call against a deployment.
func (a *Adapter) OpenStream(ctx context.Context, model catalog.ModelConfig, messages []provider.Message, params any) (provider.ChunkStream, error) {
	body := buildRequest(messages, params, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(model.Deployment), strings.NewReader(string(payload)))
	if err != nil {
		return nil, &apierr.UpstreamError{Provider: a.ID(), Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", a.apiKey)
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

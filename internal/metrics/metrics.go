// Package metrics implements the Metrics Engine (C9): token counts, cost,
// and (stream-only) latency timings for a single call.
package metrics

import (
	"strings"
	"time"

	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
)

// Metrics is the engine's computed usage/latency summary, populated only
// on the final envelope of a call (spec §3 "Metrics").
type Metrics struct {
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	CostUSD      float64  `json:"cost_usd"`
	LatencyS     float64  `json:"latency_s"`

	// Stream-only; zero value is indistinguishable from absent in JSON
	// encoding via omitempty, matching the spec's "float or absent".
	TimeToFirstTokenS *float64 `json:"time_to_first_token_s,omitempty"`
	InterTokenLatencyS *float64 `json:"inter_token_latency_s,omitempty"`
	TokensPerSecond   float64  `json:"tokens_per_second"`
}

// Tokenizer is the sole contract metrics needs from C3: encode a string
// into a token id sequence whose length is the token count.
type Tokenizer interface {
	Encode(text string) []int
}

// NonStream computes metrics for a one-shot completion (spec §4.6): token
// counts come straight from usage, latency from wall clock, no stream-only
// timings.
func NonStream(model catalog.ModelConfig, promptTokens, completionTokens int, start time.Time) *Metrics {
	total := promptTokens + completionTokens
	latency := time.Since(start).Seconds()
	m := &Metrics{
		InputTokens:  promptTokens,
		OutputTokens: completionTokens,
		TotalTokens:  total,
		CostUSD:      model.InputTokenCost.Calculate(promptTokens) + model.OutputTokenCost.Calculate(completionTokens),
		LatencyS:     latency,
	}
	if latency > 0 {
		m.TokensPerSecond = float64(total) / latency
	}
	return m
}

// StreamAccumulator tracks the request-scoped counters C7 maintains across
// a stream's chunks (spec §4.6 "Maintain: first_token_time,
// previous_token_time, token_times[], token_count"). It is strictly
// per-call state, never shared across calls.
type StreamAccumulator struct {
	start           time.Time
	firstTokenTime  *time.Time
	previousToken   *time.Time
	tokenTimes      []float64
	tokenCount      int
}

// NewStreamAccumulator starts the accumulator's clock at call start (t0).
func NewStreamAccumulator(start time.Time) *StreamAccumulator {
	return &StreamAccumulator{start: start}
}

// Observe records the arrival of one chunk.
func (a *StreamAccumulator) Observe(at time.Time) {
	a.tokenCount++
	if a.firstTokenTime == nil {
		t := at
		a.firstTokenTime = &t
	}
	if a.previousToken != nil {
		a.tokenTimes = append(a.tokenTimes, at.Sub(*a.previousToken).Seconds())
	}
	t := at
	a.previousToken = &t
}

// Finalize computes the terminator envelope's Metrics from the accumulated
// timings plus the joined output's token count (spec §4.8).
func (a *StreamAccumulator) Finalize(model catalog.ModelConfig, inputTokens, outputTokens int, now time.Time) *Metrics {
	total := inputTokens + outputTokens
	latency := now.Sub(a.start).Seconds()
	m := &Metrics{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  total,
		CostUSD:      model.InputTokenCost.Calculate(inputTokens) + model.OutputTokenCost.Calculate(outputTokens),
		LatencyS:     latency,
	}
	if a.firstTokenTime != nil {
		ttft := a.firstTokenTime.Sub(a.start).Seconds()
		m.TimeToFirstTokenS = &ttft
	}
	if len(a.tokenTimes) > 0 {
		sum := 0.0
		for _, t := range a.tokenTimes {
			sum += t
		}
		mean := sum / float64(len(a.tokenTimes))
		m.InterTokenLatencyS = &mean
	}
	if latency > 0 {
		m.TokensPerSecond = float64(a.tokenCount) / latency
	}
	return m
}

// CanonicalInput flattens a chatrequest.ChatInput to its canonical string
// form for tokenization (spec §4.8 "canonical string form"): the string
// itself if ChatInput was given as a string, else every message's content
// concatenated in order.
func CanonicalInput(input chatrequest.ChatInput) string {
	if input.Text != nil {
		return *input.Text
	}
	var b strings.Builder
	for _, msg := range input.Messages {
		b.WriteString(canonicalContent(msg.Content))
	}
	return b.String()
}

func canonicalContent(c chatrequest.MessageContent) string {
	if c.Text != nil {
		return *c.Text
	}
	var b strings.Builder
	for _, part := range c.Parts {
		switch part.Type {
		case "text":
			b.WriteString(part.Text)
		case "image_url":
			b.WriteString(part.ImageURL.URL)
		}
	}
	return b.String()
}

// TokenCount runs a Tokenizer over text and returns the token count.
func TokenCount(tok Tokenizer, text string) int {
	if text == "" {
		return 0
	}
	return len(tok.Encode(text))
}

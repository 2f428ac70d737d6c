package metrics

import (
	"testing"
	"time"

	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarCost(f float64) catalog.CostSpec { return catalog.CostSpec{Scalar: &f} }

func TestNonStreamTotalTokens(t *testing.T) {
	model := catalog.ModelConfig{InputTokenCost: scalarCost(0.001), OutputTokenCost: scalarCost(0.002)}
	m := NonStream(model, 1, 1, time.Now().Add(-10*time.Millisecond))
	assert.Equal(t, 2, m.TotalTokens)
	assert.InDelta(t, 0.001+0.002, m.CostUSD, 1e-9)
}

func TestStreamAccumulatorTTFTAndInterTokenLatency(t *testing.T) {
	start := time.Now()
	acc := NewStreamAccumulator(start)

	t0 := start.Add(10 * time.Millisecond)
	t1 := t0.Add(20 * time.Millisecond)
	t2 := t1.Add(30 * time.Millisecond)

	acc.Observe(t0)
	acc.Observe(t1)
	acc.Observe(t2)

	model := catalog.ModelConfig{InputTokenCost: scalarCost(0), OutputTokenCost: scalarCost(0)}
	m := acc.Finalize(model, 5, 3, t2)

	require.NotNil(t, m.TimeToFirstTokenS)
	assert.InDelta(t, 0.010, *m.TimeToFirstTokenS, 0.001)

	require.NotNil(t, m.InterTokenLatencyS)
	assert.InDelta(t, 0.025, *m.InterTokenLatencyS, 0.001)
}

func TestStreamAccumulatorSingleChunkHasNoInterTokenLatency(t *testing.T) {
	start := time.Now()
	acc := NewStreamAccumulator(start)
	acc.Observe(start.Add(5 * time.Millisecond))

	model := catalog.ModelConfig{InputTokenCost: scalarCost(0), OutputTokenCost: scalarCost(0)}
	m := acc.Finalize(model, 1, 1, start.Add(5*time.Millisecond))

	assert.Nil(t, m.InterTokenLatencyS)
	require.NotNil(t, m.TimeToFirstTokenS)
}

func TestNonStreamTokensPerSecondUsesTotalTokens(t *testing.T) {
	model := catalog.ModelConfig{InputTokenCost: scalarCost(0), OutputTokenCost: scalarCost(0)}
	m := NonStream(model, 3, 1, time.Now().Add(-2*time.Second))
	assert.InDelta(t, 2.0, m.TokensPerSecond, 0.1)
}

func TestCanonicalInputMessagesIncludesImageURL(t *testing.T) {
	input := chatrequest.ChatInput{Messages: []chatrequest.Message{
		{Role: "user", Content: chatrequest.MessageContent{Parts: []chatrequest.ContentPart{
			{Type: "text", Text: "look at this"},
			{Type: "image_url", ImageURL: chatrequest.ImageURL{URL: "https://example.com/cat.png"}},
		}}},
	}}
	assert.Equal(t, "look at thishttps://example.com/cat.png", CanonicalInput(input))
}

func TestCanonicalInputString(t *testing.T) {
	text := "Hello"
	input := chatrequest.ChatInput{Text: &text}
	assert.Equal(t, "Hello", CanonicalInput(input))
}

func TestCanonicalInputMessages(t *testing.T) {
	hi := "Hi"
	there := "there"
	input := chatrequest.ChatInput{Messages: []chatrequest.Message{
		{Role: "user", Content: chatrequest.MessageContent{Text: &hi}},
		{Role: "assistant", Content: chatrequest.MessageContent{Text: &there}},
	}}
	assert.Equal(t, "Hithere", CanonicalInput(input))
}

func TestTokenCountEmptyTextIsZero(t *testing.T) {
	assert.Equal(t, 0, TokenCount(stubTokenizer{}, ""))
}

type stubTokenizer struct{}

func (stubTokenizer) Encode(text string) []int { return []int{1, 2, 3} }

// Package tokenizer implements the Tokenizer Accessor (C3): per-provider
// tokenizer resolution with a default fallback encoder.
//
// The sole contract is Encode(string) -> token ids, whose length is the
// token count (spec §4.2). The default encoder is tiktoken-go's cl100k_base
// BPE, the same encoder widely vendored across the retrieved corpus for
// exactly this "good enough for any OpenAI-shaped model" role.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer is the accessor's output contract.
type Tokenizer interface {
	Encode(text string) []int
}

// cl100k wraps a tiktoken-go encoding as a Tokenizer.
type cl100k struct {
	enc *tiktoken.Tiktoken
}

func (t cl100k) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

var (
	defaultOnce sync.Once
	defaultTok  Tokenizer
	defaultErr  error
)

// Default returns the process-wide default tokenizer, lazily building the
// cl100k_base encoding once and reusing it for every subsequent call —
// tiktoken-go's BPE merge tables are read-only after construction and safe
// to share (spec §4.12 "read-only after initialization and safely shared").
func Default() (Tokenizer, error) {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultErr = fmt.Errorf("tokenizer: failed to load default encoding: %w", err)
			return
		}
		defaultTok = cl100k{enc: enc}
	})
	return defaultTok, defaultErr
}

// Accessor resolves the tokenizer to use for a given provider: an explicit
// per-call override, else a per-provider registered tokenizer, else the
// default encoder.
type Accessor struct {
	mu          sync.RWMutex
	perProvider map[string]Tokenizer
}

// NewAccessor builds an Accessor with no per-provider overrides registered.
func NewAccessor() *Accessor {
	return &Accessor{perProvider: make(map[string]Tokenizer)}
}

// Register binds a tokenizer to a provider id, overriding the default for
// that provider. Intended to be called during startup wiring, not per-call.
func (a *Accessor) Register(providerID string, tok Tokenizer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.perProvider[providerID] = tok
}

// Resolve picks the tokenizer for one call: override (if non-nil), else the
// provider's registered tokenizer, else the default.
func (a *Accessor) Resolve(providerID string, override Tokenizer) (Tokenizer, error) {
	if override != nil {
		return override, nil
	}
	a.mu.RLock()
	tok, ok := a.perProvider[providerID]
	a.mu.RUnlock()
	if ok {
		return tok, nil
	}
	return Default()
}

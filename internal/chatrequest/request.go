// Package chatrequest defines the provider-agnostic chat request shape that
// enters the engine, and the ValidatedRequest it becomes once C4 has checked
// it against a model catalog.
//
// Go has no tagged-union type, so ChatInput and MessageContent are both
// modeled as "one-of" structs with a discriminant-free zero value check:
// exactly one of their fields is non-nil after UnmarshalJSON. This mirrors the
// Python original's permissive `chat_input: Any`, but keeps every branch
// total and explicit instead of relying on isinstance checks at each use
// site — those checks now live once, in UnmarshalJSON.
package chatrequest

import (
	"encoding/json"
	"fmt"
)

// ChatRequest is the input to the engine (spec §3 "ChatRequest").
type ChatRequest struct {
	Model     string         `json:"model"`
	ChatInput ChatInput      `json:"chat_input"`
	IsStream  bool           `json:"is_stream"`
	Retries   int            `json:"retries"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ChatInput is either a bare string (single user turn) or an ordered
// sequence of Messages.
type ChatInput struct {
	Text     *string
	Messages []Message
}

// IsString reports whether the input was given as a plain string.
func (c ChatInput) IsString() bool { return c.Text != nil }

func (c ChatInput) MarshalJSON() ([]byte, error) {
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	return json.Marshal(c.Messages)
}

func (c *ChatInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = &s
		c.Messages = nil
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("chat_input: must be a string or a message sequence: %w", err)
	}
	c.Text = nil
	c.Messages = msgs
	return nil
}

// LastContent returns the content of the last message when ChatInput is a
// message sequence — used to populate the envelope's chat_input field
// (spec §3: "chat_input": original input if it was a string, else the
// content of the last message).
func (c ChatInput) LastContent() MessageContent {
	if len(c.Messages) == 0 {
		return MessageContent{}
	}
	return c.Messages[len(c.Messages)-1].Content
}

// Message is one turn in a structured ChatInput.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or an ordered sequence of
// ContentParts (text / image_url).
type MessageContent struct {
	Text  *string
	Parts []ContentPart
}

func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.Text != nil {
		return json.Marshal(*m.Text)
	}
	return json.Marshal(m.Parts)
}

func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = &s
		m.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content: must be a string or a part sequence: %w", err)
	}
	m.Text = nil
	m.Parts = parts
	return nil
}

// ContentPart is one typed piece of a structured message content sequence.
type ContentPart struct {
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries the url field of an image_url content part.
type ImageURL struct {
	URL string `json:"url,omitempty"`
}

// ValidatedRequest is the immutable result of C4's Validate. Nothing in the
// engine mutates it after construction; every downstream component reads
// from it.
type ValidatedRequest struct {
	Model      string
	ChatInput  ChatInput
	IsStream   bool
	Retries    int
	Parameters map[string]any
	// ProviderParameters is the result of the provider adapter's
	// ValidateParameters call — a typed, provider-specific parameter
	// struct (e.g. openai.Parameters), opaque to everything except the
	// adapter that produced it.
	ProviderParameters any
}

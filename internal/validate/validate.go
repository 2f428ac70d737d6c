// Package validate implements Request Validation (C4): structural shape
// checking, catalog membership, and delegation to the provider's own
// parameter schema.
package validate

import (
	"fmt"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/chatrequest"
	"github.com/dispatchlab/llmengine/internal/provider"
)

// Validate checks a ChatRequest's structural shape, resolves its model
// against the catalog, and delegates parameter validation to the
// provider's own schema (spec §4.4).
func Validate(req chatrequest.ChatRequest, providerID string, cat *catalog.Catalog, p provider.Provider) (*chatrequest.ValidatedRequest, error) {
	if err := validateShape(req); err != nil {
		return nil, err
	}

	if _, err := cat.Lookup(providerID, req.Model); err != nil {
		return nil, err
	}

	providerParams, err := p.ValidateParameters(req.Parameters)
	if err != nil {
		return nil, err
	}

	return &chatrequest.ValidatedRequest{
		Model:              req.Model,
		ChatInput:          req.ChatInput,
		IsStream:           req.IsStream,
		Retries:            req.Retries,
		Parameters:         req.Parameters,
		ProviderParameters: providerParams,
	}, nil
}

func validateShape(req chatrequest.ChatRequest) error {
	if req.Model == "" {
		return &apierr.ValidationError{Field: "model", Message: "must be a non-empty string"}
	}
	if req.ChatInput.Text == nil && req.ChatInput.Messages == nil {
		return &apierr.ValidationError{Field: "chat_input", Message: "must be a string or a message sequence"}
	}
	if req.ChatInput.Messages != nil {
		for i, m := range req.ChatInput.Messages {
			if m.Role == "" {
				return &apierr.ValidationError{Field: "chat_input", Message: fmt.Sprintf("message at index %d has an empty role", i)}
			}
			if m.Content.Text == nil && m.Content.Parts == nil {
				return &apierr.ValidationError{Field: "chat_input", Message: fmt.Sprintf("message at index %d must have string or part content", i)}
			}
		}
	}
	if req.Retries < 0 {
		return &apierr.ValidationError{Field: "retries", Message: "must be >= 0"}
	}
	return nil
}

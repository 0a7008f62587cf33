// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini API provider for Consilium.
package gemini

import (
	"context"
	"fmt"

	"github.com/consilium-health/consilium/pkg/llm"
	"google.golang.org/genai"
)

// Provider implements llm.Provider for the Google Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a new Gemini provider.
// API key is read from GOOGLE_API_KEY or GEMINI_API_KEY environment variable by default.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newProvider(client, opts), nil
}

// NewWithAPIKey creates a new Gemini provider with explicit API key.
func NewWithAPIKey(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newProvider(client, opts), nil
}

func newProvider(client *genai.Client, opts []Option) *Provider {
	p := &Provider{
		client: client,
		model:  "gemini-2.0-flash",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertMessages(req.Messages)

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	return convertResponse(resp), nil
}

// convertMessages converts Consilium messages to Gemini format.
// The system message becomes the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = msg.Content
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, systemInstruction
}

// convertResponse converts a Gemini response to Consilium format.
func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}

	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
			}
		}
	}

	return result
}

// Ensure Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

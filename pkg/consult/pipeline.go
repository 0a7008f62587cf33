// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

package consult

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/consilium-health/consilium/pkg/errors"
	"github.com/consilium-health/consilium/pkg/llm"
	"github.com/consilium-health/consilium/pkg/prompt"
	"github.com/consilium-health/consilium/pkg/resilience"
	"github.com/consilium-health/consilium/pkg/telemetry"
)

// Pipeline coordinates the specialist fan-out and the synthesis call.
type Pipeline struct {
	provider    llm.Provider
	registry    *prompt.Registry
	model       string
	temperature float64
	policy      FailurePolicy
	callTimeout time.Duration
	retry       resilience.RetryConfig
	metrics     *telemetry.AnalysisMetrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// New creates a Pipeline around a provider.
func New(provider llm.Provider, opts ...Option) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "provider is required", nil)
	}
	p := &Pipeline{
		provider: provider,
		registry: prompt.NewRegistry(),
		policy:   FailAbort,
		retry:    resilience.RetryConfig{MaxAttempts: 1},
		logger:   slog.Default(),
		tracer:   otel.Tracer("consilium/consult"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithRegistry sets the prompt registry (custom roles included).
func WithRegistry(reg *prompt.Registry) Option {
	return func(p *Pipeline) error {
		if reg == nil {
			return errors.New(errors.CodeInvalidInput, "registry is nil", nil)
		}
		p.registry = reg
		return nil
	}
}

// WithModel sets the model identifier passed to the provider.
func WithModel(model string) Option {
	return func(p *Pipeline) error {
		p.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) error {
		p.temperature = t
		return nil
	}
}

// WithFailurePolicy sets the partial-failure policy.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Pipeline) error {
		switch policy {
		case FailAbort, FailPartial:
			p.policy = policy
			return nil
		default:
			return errors.New(errors.CodeInvalidInput, "unknown failure policy", nil).
				WithContext("policy", string(policy))
		}
	}
}

// WithCallTimeout bounds each provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.callTimeout = d
		return nil
	}
}

// WithRetry sets the retry policy around each provider call.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(p *Pipeline) error {
		p.retry = rc
		return nil
	}
}

// WithMetrics attaches analysis metrics.
func WithMetrics(m *telemetry.AnalysisMetrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// Registry exposes the pipeline's prompt registry.
func (p *Pipeline) Registry() *prompt.Registry {
	return p.registry
}

// Analyze runs every specialist over the report concurrently, waits for
// all of them, then synthesizes the final assessment. The report text is
// validated before any provider call is made.
func (p *Pipeline) Analyze(ctx context.Context, report string) (*Result, error) {
	if strings.TrimSpace(report) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "report text is empty", nil)
	}

	ctx, span := p.tracer.Start(ctx, "consult.analyze")
	defer span.End()

	started := time.Now()
	roles := p.registry.Specialists()
	span.SetAttributes(attribute.Int("consult.specialists", len(roles)))

	assessments := make([]Assessment, len(roles))
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func(i int, role prompt.Role) {
			defer wg.Done()
			assessments[i] = p.consult(ctx, role, prompt.Data{Report: report})
		}(i, role)
	}
	// Join barrier: synthesis never starts before every specialist returns.
	wg.Wait()

	result := &Result{
		Assessments: make(map[prompt.Role]Assessment, len(roles)),
		Order:       roles,
		StartedAt:   started,
	}

	var sections []prompt.Section
	var firstErr error
	for _, a := range assessments {
		result.Assessments[a.Role] = a
		if a.Err != nil {
			if firstErr == nil {
				firstErr = a.Err
			}
			continue
		}
		sections = append(sections, prompt.Section{Role: a.Role, Content: a.Content})
	}

	if firstErr != nil {
		if p.policy == FailAbort {
			p.finishRun(ctx, "failed", started)
			return nil, firstErr
		}
		if len(sections) == 0 {
			p.finishRun(ctx, "failed", started)
			return nil, errors.New(errors.CodeLLMError, "every specialist consultation failed", firstErr)
		}
		result.Partial = true
		p.logger.WarnContext(ctx, "continuing with partial specialist results",
			"available", len(sections), "expected", len(roles))
	}

	synthesis := p.consult(ctx, prompt.MultidisciplinaryTeam, prompt.Data{Sections: sections})
	if synthesis.Err != nil {
		p.finishRun(ctx, "failed", started)
		return nil, synthesis.Err
	}
	result.Synthesis = synthesis
	result.FinishedAt = time.Now()

	outcome := "completed"
	if result.Partial {
		outcome = "partial"
	}
	p.finishRun(ctx, outcome, started)
	return result, nil
}

// consult builds the prompt for one role and performs the provider call
// under the configured timeout and retry policy.
func (p *Pipeline) consult(ctx context.Context, role prompt.Role, data prompt.Data) Assessment {
	ctx, span := p.tracer.Start(ctx, "consult.call",
		trace.WithAttributes(attribute.String("consult.role", string(role))))
	defer span.End()

	started := time.Now()

	userPrompt, err := p.registry.Build(role, data)
	if err != nil {
		return Assessment{Role: role, Err: err}
	}

	req := llm.ChatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.registry.System(role)},
			{Role: llm.RoleUser, Content: userPrompt},
		},
	}

	var resp *llm.ChatResponse
	err = resilience.WithTimeout(ctx, p.callTimeout, func(ctx context.Context) error {
		return p.retry.Do(ctx, func() error {
			r, chatErr := p.provider.Chat(ctx, req)
			if chatErr != nil {
				return errors.New(errors.CodeLLMError, "provider call failed", chatErr).
					WithContext("role", string(role)).
					WithRecoverable(true)
			}
			if strings.TrimSpace(r.Content) == "" {
				return errors.New(errors.CodeLLMError, "model returned an empty response", nil).
					WithContext("role", string(role)).
					WithRecoverable(true)
			}
			resp = r
			return nil
		})
	})

	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordError(ctx, string(role), err)
		p.logger.ErrorContext(ctx, "consultation failed",
			"role", role, "elapsed", elapsed, "error", err)
		return Assessment{Role: role, Elapsed: elapsed, Err: err}
	}

	p.metrics.RecordCall(ctx, string(role), elapsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	p.logger.InfoContext(ctx, "consultation completed",
		"role", role, "elapsed", elapsed, "tokens", resp.Usage.TotalTokens)

	return Assessment{
		Role:    role,
		Content: resp.Content,
		Usage:   resp.Usage,
		Elapsed: elapsed,
	}
}

func (p *Pipeline) finishRun(ctx context.Context, outcome string, started time.Time) {
	p.metrics.RecordRun(ctx, outcome, time.Since(started))
}

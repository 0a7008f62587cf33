package consult

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/consilium-health/consilium/pkg/errors"
	"github.com/consilium-health/consilium/pkg/llm"
	"github.com/consilium-health/consilium/pkg/prompt"
	"github.com/consilium-health/consilium/pkg/resilience"
)

const sampleReport = "Patient reports chest pain and anxiety."

// roleOf extracts the role a request was built for by matching its
// system message against the registry.
func roleOf(reg *prompt.Registry, req llm.ChatRequest) prompt.Role {
	for _, role := range reg.Roles() {
		if req.Messages[0].Content == reg.System(role) {
			return role
		}
	}
	return ""
}

func TestAnalyzeEndToEnd(t *testing.T) {
	reg := prompt.NewRegistry()
	mock := &llm.MockProvider{}
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		role := roleOf(reg, req)
		return &llm.ChatResponse{
			Content: fmt.Sprintf("%s assessment body", role),
			Usage:   llm.Usage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
		}, nil
	}

	p, err := New(mock, WithRegistry(reg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := p.Analyze(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(result.Assessments) != 3 {
		t.Fatalf("expected 3 assessments, got %d", len(result.Assessments))
	}
	if result.Partial {
		t.Error("run should not be partial")
	}
	if result.Synthesis.Content == "" {
		t.Error("missing synthesis")
	}

	reqs := mock.Requests()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 provider calls, got %d", len(reqs))
	}

	// Three distinct specialist prompts, each containing the report verbatim.
	specialistPrompts := make(map[string]bool)
	var synthesisPrompt string
	for _, req := range reqs {
		user := req.Messages[1].Content
		if roleOf(reg, req) == prompt.MultidisciplinaryTeam {
			synthesisPrompt = user
			continue
		}
		if !strings.Contains(user, sampleReport) {
			t.Errorf("specialist prompt missing report text: %q", user)
		}
		specialistPrompts[user] = true
	}
	if len(specialistPrompts) != 3 {
		t.Errorf("expected 3 distinct specialist prompts, got %d", len(specialistPrompts))
	}

	// The synthesis prompt carries all three specialist outputs.
	for _, role := range reg.Specialists() {
		want := fmt.Sprintf("%s assessment body", role)
		if !strings.Contains(synthesisPrompt, want) {
			t.Errorf("synthesis prompt missing output of %s", role)
		}
	}

	if got := result.Usage().TotalTokens; got != 40 {
		t.Errorf("usage total: got %d, want 40", got)
	}
}

func TestAnalyzeRejectsEmptyReportBeforeDispatch(t *testing.T) {
	mock := &llm.MockProvider{Response: "should never be called"}
	p, err := New(mock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.Analyze(context.Background(), "   \n")
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if len(mock.Requests()) != 0 {
		t.Error("empty report must be rejected before any provider call")
	}
}

func TestSynthesisWaitsForAllSpecialists(t *testing.T) {
	reg := prompt.NewRegistry()

	var mu sync.Mutex
	var inFlight, synthesisStartedWith int32
	mock := &llm.MockProvider{}
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		role := roleOf(reg, req)
		if role == prompt.MultidisciplinaryTeam {
			mu.Lock()
			synthesisStartedWith = atomic.LoadInt32(&inFlight)
			mu.Unlock()
			return &llm.ChatResponse{Content: "final"}, nil
		}
		atomic.AddInt32(&inFlight, 1)
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &llm.ChatResponse{Content: string(role) + " done"}, nil
	}

	p, err := New(mock, WithRegistry(reg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Analyze(context.Background(), sampleReport); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if synthesisStartedWith != 0 {
		t.Errorf("synthesis started while %d specialist calls were in flight", synthesisStartedWith)
	}
}

func TestAbortPolicyFailsRunOnSpecialistError(t *testing.T) {
	reg := prompt.NewRegistry()
	mock := &llm.MockProvider{}
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if roleOf(reg, req) == prompt.Psychologist {
			return nil, fmt.Errorf("quota exceeded")
		}
		return &llm.ChatResponse{Content: "fine"}, nil
	}

	p, err := New(mock, WithRegistry(reg), WithFailurePolicy(FailAbort))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.Analyze(context.Background(), sampleReport)
	if errors.CodeOf(err) != errors.CodeLLMError {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}

	// Synthesis must not have run.
	for _, req := range mock.Requests() {
		if roleOf(reg, req) == prompt.MultidisciplinaryTeam {
			t.Error("synthesis ran despite abort policy")
		}
	}
}

func TestPartialPolicyProceedsWithRemaining(t *testing.T) {
	reg := prompt.NewRegistry()
	mock := &llm.MockProvider{}
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		switch roleOf(reg, req) {
		case prompt.Pulmonologist:
			return nil, fmt.Errorf("connection reset")
		case prompt.MultidisciplinaryTeam:
			return &llm.ChatResponse{Content: "partial synthesis"}, nil
		default:
			return &llm.ChatResponse{Content: "ok"}, nil
		}
	}

	p, err := New(mock, WithRegistry(reg), WithFailurePolicy(FailPartial))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := p.Analyze(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !result.Partial {
		t.Error("result should be marked partial")
	}
	if result.Assessments[prompt.Pulmonologist].Err == nil {
		t.Error("failed role should carry its error")
	}
	if result.Synthesis.Content != "partial synthesis" {
		t.Errorf("synthesis: got %q", result.Synthesis.Content)
	}
}

func TestPartialPolicyFailsWhenNothingSucceeds(t *testing.T) {
	mock := &llm.FailingMockProvider{Err: fmt.Errorf("down")}
	p, err := New(mock, WithFailurePolicy(FailPartial))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = p.Analyze(context.Background(), sampleReport)
	if errors.CodeOf(err) != errors.CodeLLMError {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
}

func TestEmptyModelResponseIsError(t *testing.T) {
	mock := &llm.MockProvider{Response: "   "}
	p, err := New(mock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = p.Analyze(context.Background(), sampleReport)
	if errors.CodeOf(err) != errors.CodeLLMError {
		t.Fatalf("expected LLM_ERROR for empty response, got %v", err)
	}
}

func TestRetryRecoverTransientFailure(t *testing.T) {
	reg := prompt.NewRegistry()
	var calls int32
	mock := &llm.MockProvider{}
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if roleOf(reg, req) == prompt.Cardiologist && atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("transient")
		}
		return &llm.ChatResponse{Content: "recovered"}, nil
	}

	p, err := New(mock,
		WithRegistry(reg),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Analyze(context.Background(), sampleReport); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
}

func TestNewRejectsNilProvider(t *testing.T) {
	if _, err := New(nil); errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(&llm.MockProvider{}, WithFailurePolicy(FailurePolicy("shrug")))
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/consilium-health/consilium/pkg/consult"
	"github.com/consilium-health/consilium/pkg/prompt"
)

func sampleResult() *consult.Result {
	order := []prompt.Role{prompt.Cardiologist, prompt.Psychologist, prompt.Pulmonologist}
	r := &consult.Result{
		Assessments: make(map[prompt.Role]consult.Assessment),
		Order:       order,
		Synthesis:   consult.Assessment{Role: prompt.MultidisciplinaryTeam, Content: "final synthesis"},
		FinishedAt:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	for _, role := range order {
		r.Assessments[role] = consult.Assessment{Role: role, Content: string(role) + " findings"}
	}
	return r
}

func TestRenderContainsEverySection(t *testing.T) {
	doc := FromResult(sampleResult())
	out := doc.Render()

	for _, want := range []string{
		"MEDICAL REPORT ANALYSIS",
		"Generated on: 2026-03-14 09:26:53",
		"CARDIOLOGIST ANALYSIS:",
		"Cardiologist findings",
		"PSYCHOLOGIST ANALYSIS:",
		"PULMONOLOGIST ANALYSIS:",
		"FINAL MULTIDISCIPLINARY TEAM ANALYSIS:",
		"final synthesis",
		"End of Report",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered document missing %q", want)
		}
	}
}

func TestRenderPreservesRunOrder(t *testing.T) {
	doc := FromResult(sampleResult())
	out := doc.Render()

	iCard := strings.Index(out, "CARDIOLOGIST ANALYSIS")
	iPsy := strings.Index(out, "PSYCHOLOGIST ANALYSIS")
	iPul := strings.Index(out, "PULMONOLOGIST ANALYSIS")
	iFinal := strings.Index(out, "FINAL MULTIDISCIPLINARY")
	if !(iCard < iPsy && iPsy < iPul && iPul < iFinal) {
		t.Errorf("sections out of order: %d %d %d %d", iCard, iPsy, iPul, iFinal)
	}
}

func TestRenderMarksFailedSection(t *testing.T) {
	r := sampleResult()
	r.Partial = true
	r.Assessments[prompt.Pulmonologist] = consult.Assessment{
		Role: prompt.Pulmonologist,
		Err:  fmt.Errorf("timed out"),
	}

	out := FromResult(r).Render()
	if !strings.Contains(out, "No response (consultation failed).") {
		t.Error("failed section not marked")
	}
	if !strings.Contains(out, "this analysis is partial") {
		t.Error("partial note missing")
	}
}

func TestFilename(t *testing.T) {
	doc := FromResult(sampleResult())
	want := "medical_analysis_20260314_092653.txt"
	if got := doc.Filename(); got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

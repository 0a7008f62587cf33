package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consilium-health/consilium/pkg/errors"
)

const sampleReport = "Patient reports chest pain and anxiety."

func TestBuildContainsReportVerbatim(t *testing.T) {
	reg := NewRegistry()

	prompts := make(map[Role]string)
	for _, role := range reg.Specialists() {
		got, err := reg.Build(role, Data{Report: sampleReport})
		if err != nil {
			t.Fatalf("Build(%s) failed: %v", role, err)
		}
		if !strings.Contains(got, sampleReport) {
			t.Errorf("prompt for %s does not contain the report verbatim", role)
		}
		prompts[role] = got
	}

	if len(prompts) != 3 {
		t.Fatalf("expected 3 specialist prompts, got %d", len(prompts))
	}

	// The three prompts must be distinct.
	seen := make(map[string]Role)
	for role, p := range prompts {
		if prev, dup := seen[p]; dup {
			t.Errorf("roles %s and %s produced identical prompts", prev, role)
		}
		seen[p] = role
	}
}

func TestBuildDeterministic(t *testing.T) {
	reg := NewRegistry()
	a, err := reg.Build(Cardiologist, Data{Report: sampleReport})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := reg.Build(Cardiologist, Data{Report: sampleReport})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if a != b {
		t.Error("same role and report should produce identical prompts")
	}
}

func TestBuildSynthesisContainsAllSections(t *testing.T) {
	reg := NewRegistry()
	data := Data{Sections: []Section{
		{Role: Cardiologist, Content: "cardiac findings"},
		{Role: Psychologist, Content: "psychological findings"},
		{Role: Pulmonologist, Content: "pulmonary findings"},
	}}

	got, err := reg.Build(MultidisciplinaryTeam, data)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, s := range data.Sections {
		if !strings.Contains(got, s.Content) {
			t.Errorf("synthesis prompt missing %s output", s.Role)
		}
	}
}

func TestBuildRejectsEmptyReport(t *testing.T) {
	reg := NewRegistry()
	for _, report := range []string{"", "   ", "\n\t"} {
		_, err := reg.Build(Cardiologist, Data{Report: report})
		if errors.CodeOf(err) != errors.CodeInvalidInput {
			t.Errorf("report %q: expected INVALID_INPUT, got %v", report, err)
		}
	}
}

func TestBuildRejectsUnknownRole(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(Role("Dermatologist"), Data{Report: sampleReport})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestBuildSynthesisRequiresSections(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(MultidisciplinaryTeam, Data{})
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestRolesOrderSynthesisLast(t *testing.T) {
	reg := NewRegistry()
	roles := reg.Roles()
	if roles[len(roles)-1] != MultidisciplinaryTeam {
		t.Errorf("synthesis role must come last, got %v", roles)
	}
	if len(reg.Specialists()) != 3 {
		t.Errorf("expected 3 built-in specialists, got %v", reg.Specialists())
	}
}

func TestRegisterRequiresReportPlaceholder(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Role("Neurologist"), "sys", "no placeholder here")
	if errors.CodeOf(err) != errors.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestLoadFileMergesCustomRoles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `
roles:
  - name: Neurologist
    system: You are a neurologist.
    template: |
      Review from a neurology perspective.

      Medical Report:
      {{.Report}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roles file: %v", err)
	}

	reg := NewRegistry()
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if !reg.Has(Role("Neurologist")) {
		t.Fatal("custom role not registered")
	}
	got, err := reg.Build(Role("Neurologist"), Data{Report: sampleReport})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(got, sampleReport) {
		t.Error("custom role prompt missing report text")
	}
	if len(reg.Specialists()) != 4 {
		t.Errorf("expected 4 specialists after merge, got %v", reg.Specialists())
	}
}

func TestLoadFileBadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `
roles:
  - name: Broken
    template: "{{.Report"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roles file: %v", err)
	}

	reg := NewRegistry()
	if err := reg.LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt holds the role-to-template mapping used to build
// specialist and synthesis prompts. Templates substitute the report
// text (or prior specialist assessments) verbatim.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/consilium-health/consilium/pkg/errors"
)

// Role identifies which template a consultation uses.
type Role string

const (
	Cardiologist          Role = "Cardiologist"
	Psychologist          Role = "Psychologist"
	Pulmonologist         Role = "Pulmonologist"
	MultidisciplinaryTeam Role = "MultidisciplinaryTeam"
)

// Section is one specialist assessment fed into the synthesis prompt.
type Section struct {
	Role    Role
	Content string
}

// Data carries the inputs a template may reference. Specialist templates
// use .Report; the team template iterates .Sections.
type Data struct {
	Report   string
	Sections []Section
}

// Template pairs a system persona with a user prompt template.
type Template struct {
	System string
	User   *template.Template
}

// Registry maps roles to their prompt templates.
type Registry struct {
	templates map[Role]Template
	synthesis Role
}

// NewRegistry returns a registry preloaded with the built-in roles.
func NewRegistry() *Registry {
	r := &Registry{
		templates: make(map[Role]Template),
		synthesis: MultidisciplinaryTeam,
	}
	for role, def := range builtinRoles {
		r.templates[role] = Template{
			System: def.system,
			User:   template.Must(template.New(string(role)).Parse(def.user)),
		}
	}
	return r
}

// Register adds or replaces a role template. The user template must
// reference the report placeholder so the report text reaches the model.
func (r *Registry) Register(role Role, system, user string) error {
	if strings.TrimSpace(string(role)) == "" {
		return errors.New(errors.CodeInvalidInput, "role name is empty", nil)
	}
	if role != r.synthesis && !strings.Contains(user, ".Report") {
		return errors.New(errors.CodeInvalidInput, "template does not reference the report", nil).
			WithContext("role", string(role))
	}
	tmpl, err := template.New(string(role)).Parse(user)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "template parse failed", err).
			WithContext("role", string(role))
	}
	r.templates[role] = Template{System: system, User: tmpl}
	return nil
}

// Roles returns all registered role names, synthesis role last.
func (r *Registry) Roles() []Role {
	roles := make([]Role, 0, len(r.templates))
	for role := range r.templates {
		if role == r.synthesis {
			continue
		}
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return append(roles, r.synthesis)
}

// Specialists returns the specialist roles (everything except the synthesis role).
func (r *Registry) Specialists() []Role {
	roles := r.Roles()
	return roles[:len(roles)-1]
}

// Has reports whether a role is registered.
func (r *Registry) Has(role Role) bool {
	_, ok := r.templates[role]
	return ok
}

// System returns the system persona for a role.
func (r *Registry) System(role Role) string {
	return r.templates[role].System
}

// Build fills the role's template with data and returns the prompt string.
// The report text is substituted without modification. Empty input is
// rejected before any provider call can happen.
func (r *Registry) Build(role Role, data Data) (string, error) {
	tmpl, ok := r.templates[role]
	if !ok {
		return "", errors.New(errors.CodeInvalidInput, "unknown role", nil).
			WithContext("role", string(role))
	}

	if role == r.synthesis {
		if len(data.Sections) == 0 {
			return "", errors.New(errors.CodeInvalidInput, "synthesis requires specialist assessments", nil)
		}
	} else if strings.TrimSpace(data.Report) == "" {
		return "", errors.New(errors.CodeInvalidInput, "report text is empty", nil)
	}

	var sb strings.Builder
	if err := tmpl.User.Execute(&sb, data); err != nil {
		return "", errors.New(errors.CodeInternal, fmt.Sprintf("template execution failed for %s", role), err)
	}
	return sb.String(), nil
}

type roleDef struct {
	system string
	user   string
}

var builtinRoles = map[Role]roleDef{
	Cardiologist: {
		system: "You are an experienced cardiologist reviewing patient records for a multidisciplinary case conference.",
		user: `Review the medical report below from a cardiology perspective.
Focus on cardiac workup, risk factors, and possible cardiac causes such as arrhythmias or structural disease.
Provide a concise assessment and recommended next steps.

Medical Report:
{{.Report}}`,
	},
	Psychologist: {
		system: "You are a clinical psychologist reviewing patient records for a multidisciplinary case conference.",
		user: `Review the medical report below from a mental health perspective.
Consider anxiety, panic disorder, and other psychological factors that could explain or amplify the symptoms.
Provide a concise assessment and recommended next steps.

Medical Report:
{{.Report}}`,
	},
	Pulmonologist: {
		system: "You are a pulmonologist reviewing patient records for a multidisciplinary case conference.",
		user: `Review the medical report below from a respiratory perspective.
Consider asthma, breathing-pattern disorders, and other pulmonary causes of the presented symptoms.
Provide a concise assessment and recommended next steps.

Medical Report:
{{.Report}}`,
	},
	MultidisciplinaryTeam: {
		system: "You are the chair of a multidisciplinary team meeting, combining specialist opinions into one conclusion.",
		user: `Below are assessments from the specialist team.
Combine them into a final analysis: list the three most likely health issues with reasoning, and recommended next steps.

{{range .Sections}}{{.Role}} assessment:
{{.Content}}

{{end}}`,
	},
}

// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package consult runs specialist consultations against an LLM provider
// and synthesizes them into a final multidisciplinary assessment.
//
// A Pipeline fans one report out to every specialist role concurrently,
// joins the results, and only then runs the synthesis call. Nothing is
// persisted: a Result lives only as long as its caller keeps it.
package consult

import (
	"time"

	"github.com/consilium-health/consilium/pkg/llm"
	"github.com/consilium-health/consilium/pkg/prompt"
)

// Assessment is the outcome of one consultation call.
type Assessment struct {
	Role    prompt.Role
	Content string
	Usage   llm.Usage
	Elapsed time.Duration

	// Err is set when the call failed and the failure policy allowed
	// the run to continue.
	Err error
}

// Result is the joined output of an analysis run.
type Result struct {
	// Assessments maps each specialist role to its outcome,
	// including failed ones under the partial policy.
	Assessments map[prompt.Role]Assessment

	// Order lists the specialist roles in their registry order.
	Order []prompt.Role

	// Synthesis is the final multidisciplinary assessment.
	Synthesis Assessment

	// Partial is true when synthesis ran without every specialist.
	Partial bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Usage sums token consumption across every call in the run.
func (r *Result) Usage() llm.Usage {
	var total llm.Usage
	for _, a := range r.Assessments {
		total.Add(a.Usage)
	}
	total.Add(r.Synthesis.Usage)
	return total
}

// FailurePolicy decides what happens when a specialist call fails.
type FailurePolicy string

const (
	// FailAbort fails the whole run on the first specialist error.
	FailAbort FailurePolicy = "abort"

	// FailPartial proceeds to synthesis with whatever assessments
	// succeeded, marking the result as partial.
	FailPartial FailurePolicy = "partial"
)

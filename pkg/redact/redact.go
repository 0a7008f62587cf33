// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

// Package redact masks personally identifying tokens before report
// content reaches a log line. Nothing derived from an uploaded report
// is logged without passing through here.
package redact

import "regexp"

var patterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`\b(?:\+?1[\s\-.]?)?\(?\d{3}\)?[\s\-.]\d{3}[\s\-.]\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b(?:MRN|mrn)[:\s#]*\d{5,}\b`), "[MRN]"},
}

// Mask replaces emails, SSNs, phone numbers, and medical record numbers
// with placeholder tokens.
func Mask(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// Snippet returns a masked prefix of s, capped at n runes, suitable for
// debug logging without exposing a full report.
func Snippet(s string, n int) string {
	masked := Mask(s)
	runes := []rune(masked)
	if len(runes) <= n {
		return masked
	}
	return string(runes[:n]) + "…"
}

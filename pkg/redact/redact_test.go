package redact

import (
	"strings"
	"testing"
)

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "email",
			in:   "contact jane.doe@example.org for records",
			want: "contact [EMAIL] for records",
		},
		{
			name: "ssn",
			in:   "SSN 123-45-6789 on file",
			want: "SSN [SSN] on file",
		},
		{
			name: "phone",
			in:   "call (555) 867-5309 to confirm",
			want: "call [PHONE] to confirm",
		},
		{
			name: "mrn",
			in:   "patient MRN: 0048812",
			want: "patient [MRN]",
		},
		{
			name: "clean text untouched",
			in:   "patient reports chest pain and anxiety",
			want: "patient reports chest pain and anxiety",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Mask(tc.in); got != tc.want {
				t.Errorf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSnippetCapsLength(t *testing.T) {
	long := strings.Repeat("chest pain ", 50)
	got := Snippet(long, 20)
	if len([]rune(got)) != 21 { // 20 runes + ellipsis
		t.Errorf("snippet length %d", len([]rune(got)))
	}
}

func TestSnippetMasks(t *testing.T) {
	got := Snippet("mail me at a@b.io", 100)
	if strings.Contains(got, "a@b.io") {
		t.Error("snippet leaked an email address")
	}
}

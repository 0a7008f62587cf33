package main

import (
	"reflect"
	"testing"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantJSON   bool
		wantConfig []string
		wantRest   []string
		wantErr    bool
	}{
		{
			name:     "command only",
			args:     []string{"serve"},
			wantRest: []string{"serve"},
		},
		{
			name:       "config then command",
			args:       []string{"--config", "config.yaml", "analyze", "report.pdf"},
			wantConfig: []string{"--config", "config.yaml"},
			wantRest:   []string{"analyze", "report.pdf"},
		},
		{
			name:       "equals forms with json",
			args:       []string{"--json", "--set=llm.provider=ollama", "roles"},
			wantJSON:   true,
			wantConfig: []string{"--set=llm.provider=ollama"},
			wantRest:   []string{"roles"},
		},
		{
			name:     "double dash stops parsing",
			args:     []string{"--", "--json"},
			wantRest: []string{"--json"},
		},
		{
			name:    "missing config value",
			args:    []string{"--config"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"--verbose", "serve"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if flags.JSON != tc.wantJSON {
				t.Errorf("JSON: got %t", flags.JSON)
			}
			if !reflect.DeepEqual(flags.ConfigArgs, tc.wantConfig) {
				t.Errorf("ConfigArgs: got %v, want %v", flags.ConfigArgs, tc.wantConfig)
			}
			if !reflect.DeepEqual(rest, tc.wantRest) {
				t.Errorf("rest: got %v, want %v", rest, tc.wantRest)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	long := truncate("a cardiologist reviewing cardiac workup data in detail", 20)
	if len(long) != 20 {
		t.Errorf("length %d, want 20", len(long))
	}
	if got := truncate("collapse   whitespace\nacross lines", 80); got != "collapse whitespace across lines" {
		t.Errorf("got %q", got)
	}
}

// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/consilium-health/consilium/pkg/config"
	"github.com/consilium-health/consilium/pkg/errors"
	"github.com/consilium-health/consilium/pkg/llm"
	"github.com/consilium-health/consilium/pkg/llm/anthropic"
	"github.com/consilium-health/consilium/pkg/llm/gemini"
	"github.com/consilium-health/consilium/pkg/llm/openai"
)

// newProvider builds the configured LLM provider. A missing credential
// fails with UNAUTHORIZED before any client or connection is created.
func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	switch name {
	case "", "gemini":
		key := resolveKey(cfg.LLM.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		if key == "" {
			return nil, errors.New(errors.CodeUnauthorized,
				"missing Gemini API key: set llm.api_key or GOOGLE_API_KEY", nil)
		}
		var opts []gemini.Option
		if cfg.LLM.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.LLM.Model))
		}
		return gemini.NewWithAPIKey(ctx, key, opts...)
	case "openai":
		key := resolveKey(cfg.LLM.APIKey, "OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New(errors.CodeUnauthorized,
				"missing OpenAI API key: set llm.api_key or OPENAI_API_KEY", nil)
		}
		var opts []openai.Option
		if cfg.LLM.Model != "" {
			opts = append(opts, openai.WithModel(cfg.LLM.Model))
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openai.NewWithAPIKey(key, opts...), nil
	case "anthropic":
		key := resolveKey(cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
		if key == "" {
			return nil, errors.New(errors.CodeUnauthorized,
				"missing Anthropic API key: set llm.api_key or ANTHROPIC_API_KEY", nil)
		}
		var opts []anthropic.Option
		if cfg.LLM.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.LLM.Model))
		}
		return anthropic.NewWithAPIKey(key, opts...), nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	default:
		return nil, errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("unknown llm provider %q", cfg.LLM.Provider), nil)
	}
}

// resolveKey prefers the configured key, then the named env vars. The
// key is held in memory only and never written anywhere.
func resolveKey(configured string, envVars ...string) string {
	if k := strings.TrimSpace(configured); k != "" {
		return k
	}
	for _, name := range envVars {
		if k := strings.TrimSpace(os.Getenv(name)); k != "" {
			return k
		}
	}
	return ""
}

// maybePromptAPIKey asks for the key on an interactive terminal when
// the provider needs one and none was configured. Input is read
// without echo and stored only in the config struct for this process.
func maybePromptAPIKey(cfg *config.Config) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stderr.Fd()) {
		return false
	}
	fmt.Fprintf(os.Stderr, "API key for %s provider: ", cfg.LLM.Provider)
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil || len(key) == 0 {
		return false
	}
	cfg.LLM.APIKey = string(key)
	return true
}

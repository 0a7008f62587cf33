// Package config loads service configuration from defaults, a YAML
// file, CONSILIUM_-prefixed environment variables, and CLI overrides,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // gemini, openai, anthropic, ollama
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

type AnalysisConfig struct {
	// RolesFile optionally merges custom specialist roles over the built-ins.
	RolesFile string `koanf:"roles_file"`

	// OnSpecialistError is "abort" or "partial".
	OnSpecialistError string `koanf:"on_specialist_error"`

	// CallTimeout bounds each provider call. Zero disables the bound.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// RetryAttempts is the max attempts per provider call (1 = no retry).
	RetryAttempts int `koanf:"retry_attempts"`
}

type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	ResultTTL      time.Duration `koanf:"result_ttl"`
}

type StoreConfig struct {
	// Path of the run ledger database. Empty disables the ledger.
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// envPrefix maps CONSILIUM_LLM_PROVIDER -> llm.provider.
const envPrefix = "CONSILIUM_"

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "gemini")
	k.Set("llm.model", "")
	k.Set("llm.temperature", 0.3)

	k.Set("analysis.on_specialist_error", "abort")
	k.Set("analysis.call_timeout", "2m")
	k.Set("analysis.retry_attempts", 1)

	k.Set("server.addr", ":8080")
	k.Set("server.max_upload_bytes", 10<<20)
	k.Set("server.result_ttl", "15m")

	k.Set("store.path", "")

	k.Set("telemetry.exporter", "stdout")
}

// Load builds the configuration from defaults, an optional YAML file,
// and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadWithCLI parses --config, --profile, and --set key=value arguments
// and layers them over Load.
func LoadWithCLI(args []string) (*Config, error) {
	var path, profile string
	var sets []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func(flag string) (string, error) {
			if v, ok := strings.CutPrefix(arg, flag+"="); ok {
				return v, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", flag)
			}
			i++
			return args[i], nil
		}
		switch {
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			v, err := value("--config")
			if err != nil {
				return nil, err
			}
			path = v
		case arg == "--profile" || strings.HasPrefix(arg, "--profile="):
			v, err := value("--profile")
			if err != nil {
				return nil, err
			}
			profile = v
		case arg == "--set" || strings.HasPrefix(arg, "--set="):
			v, err := value("--set")
			if err != nil {
				return nil, err
			}
			sets = append(sets, v)
		default:
			return nil, fmt.Errorf("unknown config argument %q", arg)
		}
	}

	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if pp := profileConfigPath(path, profile); pp != "" {
		if err := k.Load(file.Provider(pp), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load profile config %s: %w", pp, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	for _, kv := range sets {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set expects key=value, got %q", kv)
		}
		k.Set(key, val)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// profileConfigPath resolves config.yaml + profile "dev" to
// config.dev.yaml next to the base file, if it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	name := filepath.Base(base)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, fmt.Sprintf("%s.%s%s", stem, profile, ext))
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

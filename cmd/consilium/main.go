// Copyright 2026 © The Consilium Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/consilium-health/consilium/pkg/config"
	"github.com/consilium-health/consilium/pkg/consult"
	"github.com/consilium-health/consilium/pkg/errors"
	"github.com/consilium-health/consilium/pkg/extract"
	"github.com/consilium-health/consilium/pkg/prompt"
	"github.com/consilium-health/consilium/pkg/report"
	"github.com/consilium-health/consilium/pkg/resilience"
	"github.com/consilium-health/consilium/pkg/runstore"
	"github.com/consilium-health/consilium/pkg/telemetry"
	"github.com/consilium-health/consilium/pkg/web"
)

// version is overridden at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	switch args[0] {
	case "serve":
		ensureNoArgs(args[1:])
		runServe(ctx, cfg, logger)
	case "analyze":
		runAnalyze(ctx, global, cfg, args[1:])
	case "roles":
		ensureNoArgs(args[1:])
		runRoles(global, cfg)
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--profile" || arg == "--set":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="),
			strings.HasPrefix(arg, "--profile="),
			strings.HasPrefix(arg, "--set="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	shutdownTel, err := telemetry.InitWithConfig("consilium", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTel(shutdownCtx)
	}()

	pipeline, err := buildPipeline(ctx, cfg)
	if err != nil {
		fatal(err)
	}

	opts := []web.Option{
		web.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		web.WithResultTTL(cfg.Server.ResultTTL),
		web.WithLogger(logger),
	}
	if cfg.Store.Path != "" {
		store, err := runstore.Open(cfg.Store.Path)
		if err != nil {
			fatal(err)
		}
		defer store.Close()
		opts = append(opts, web.WithStore(store))
	}

	srv, err := web.New(pipeline, opts...)
	if err != nil {
		fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			fatal(err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}

func runAnalyze(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("analyze", flag.ContinueOnError)
	outPath := cmd.String("out", "", "Write the rendered report to this path")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() != 1 {
		fatal(fmt.Errorf("usage: consilium analyze <report file>"))
	}

	f, err := os.Open(cmd.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fatal(err)
	}

	text, err := extract.Text(&extract.Document{
		Name:   f.Name(),
		Size:   info.Size(),
		Reader: f,
	})
	if err != nil {
		fatal(err)
	}

	pipeline, err := buildPipeline(ctx, cfg)
	if errors.CodeOf(err) == errors.CodeUnauthorized && maybePromptAPIKey(cfg) {
		pipeline, err = buildPipeline(ctx, cfg)
	}
	if err != nil {
		fatal(err)
	}

	result, err := pipeline.Analyze(ctx, text)
	if err != nil {
		fatal(err)
	}
	doc := report.FromResult(result)

	if global.JSON {
		printJSON(map[string]any{
			"partial":   result.Partial,
			"sections":  doc.Sections,
			"synthesis": result.Synthesis.Content,
			"usage":     result.Usage(),
		})
	}

	path := *outPath
	if path == "" {
		path = doc.Filename()
	}
	if err := os.WriteFile(path, []byte(doc.Render()), 0o600); err != nil {
		fatal(err)
	}
	if !global.JSON {
		fmt.Printf("report saved to %s\n", path)
		if result.Partial {
			fmt.Println("warning: some specialists failed, this is a partial analysis")
		}
	}
}

func runRoles(global globalFlags, cfg *config.Config) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		out := make([]map[string]string, 0)
		for _, role := range reg.Roles() {
			out = append(out, map[string]string{
				"role":   string(role),
				"system": reg.System(role),
			})
		}
		printJSON(out)
		return
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "ROLE\tSYSTEM PROMPT")
	for _, role := range reg.Roles() {
		fmt.Fprintf(writer, "%s\t%s\n", role, truncate(reg.System(role), 80))
	}
	_ = writer.Flush()
}

func buildRegistry(cfg *config.Config) (*prompt.Registry, error) {
	reg := prompt.NewRegistry()
	if cfg.Analysis.RolesFile != "" {
		if err := reg.LoadFile(cfg.Analysis.RolesFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*consult.Pipeline, error) {
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewAnalysisMetrics()
	if err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Analysis.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Analysis.RetryAttempts
	}

	return consult.New(provider,
		consult.WithRegistry(reg),
		consult.WithModel(cfg.LLM.Model),
		consult.WithTemperature(cfg.LLM.Temperature),
		consult.WithFailurePolicy(consult.FailurePolicy(cfg.Analysis.OnSpecialistError)),
		consult.WithCallTimeout(cfg.Analysis.CallTimeout),
		consult.WithRetry(retry),
		consult.WithMetrics(metrics),
	)
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func printUsage() {
	fmt.Println(`Consilium — multidisciplinary medical report analysis

Usage:
  consilium [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Config profile (loads config.<name>.yaml)
  --set key=value      Override config (repeatable)
  --json               JSON output

Commands:
  serve                Start the web UI and API
  analyze <file>       Analyze a report file (PDF or text) from the terminal
  roles                List the configured specialist roles
  version
  help`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"metacoder/internal/audit"
	"metacoder/internal/coders"
	"metacoder/internal/config"
)

const appName = "metacoder"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: one prompt, any AI coding assistant\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  run     Run a prompt through a coder")
		fmt.Fprintln(os.Stderr, "  coders  List registered coders and their availability")
		fmt.Fprintln(os.Stderr, "  audit   Show recent invocation audit events")
		fmt.Fprintln(os.Stderr, "  help    Show this help")
	}

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	switch args[0] {
	case "run":
		if err := runRun(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "coders":
		if err := runCoders(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "audit":
		if err := runAudit(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	coderName := fs.String("coder", "dummy", "Coder to use")
	configPath := fs.String("config", "", "Path to coder config YAML file")
	workdirPath := fs.String("workdir", "./workdir", "Working directory for the coder")
	instructionsPath := fs.String("instructions", "", "Path to an instructions file materialized at the coder's primary instruction path")
	model := fs.String("model", "", "Model override passed to the coder")
	promptTemplate := fs.String("prompt-template", "", "Prompt template; {input_text} is replaced with the prompt")
	auditDB := fs.String("audit-db", "", "Audit DB path (default: <workdir>/../metacoder-audit.db or $METACODER_AUDIT_DB)")
	verbose := fs.Bool("verbose", false, "Print structured messages")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%s run: exactly one prompt argument is required", appName)
	}
	prompt := fs.Arg(0)

	var cfg *config.CoderConfig
	if *configPath != "" {
		fmt.Fprintf(os.Stderr, "loading config from: %s\n", *configPath)
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	opts := coders.Options{
		Workdir: *workdirPath,
		Config:  cfg,
		Prompt:  *promptTemplate,
	}
	if *model != "" {
		opts.Params = map[string]string{"model": *model}
	}

	coder, err := coders.New(*coderName, opts)
	if err != nil {
		return fmt.Errorf("failed to create coder: %w", err)
	}

	if *instructionsPath != "" {
		withInstructions, err := applyInstructions(coder, opts, *instructionsPath)
		if err != nil {
			return err
		}
		coder, err = coders.New(*coderName, withInstructions)
		if err != nil {
			return fmt.Errorf("failed to create coder: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "using coder: %s\n", coder.Name())
	fmt.Fprintf(os.Stderr, "working directory: %s\n", *workdirPath)
	fmt.Fprintf(os.Stderr, "running prompt: %s\n", prompt)

	logger := audit.NewLogger(resolveAuditDB(*auditDB, *workdirPath))
	runID := uuid.NewString()
	startPayload := map[string]any{
		"run_id":  runID,
		"coder":   coder.Name(),
		"workdir": *workdirPath,
		"prompt":  prompt,
	}
	if err := logger.LogEvent("cli", "run_started", startPayload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}

	started := time.Now()
	result, runErr := coder.Run(context.Background(), prompt)

	finishPayload := map[string]any{
		"run_id":      runID,
		"coder":       coder.Name(),
		"workdir":     *workdirPath,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if result != nil {
		if result.Success != nil {
			finishPayload["success"] = *result.Success
		}
		if result.TotalCostUSD != nil {
			finishPayload["total_cost_usd"] = *result.TotalCostUSD
		}
	}
	if runErr != nil {
		finishPayload["error"] = runErr.Error()
	}
	if err := logger.LogEvent("cli", "run_finished", finishPayload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}

	if result != nil {
		printResult(result, *verbose)
	}
	if runErr != nil {
		return fmt.Errorf("coder execution failed: %w", runErr)
	}
	return nil
}

// applyInstructions loads the instructions file and pins it as a text
// config object at the coder's primary instruction path, on top of the
// coder's default config objects.
func applyInstructions(coder coders.Coder, opts coders.Options, path string) (coders.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, fmt.Errorf("instructions file does not exist: %s", path)
		}
		return opts, fmt.Errorf("read instructions: %w", err)
	}
	fmt.Fprintf(os.Stderr, "loaded instructions from: %s\n", path)

	defaults, err := coder.DefaultConfigObjects()
	if err != nil {
		return opts, err
	}
	opts.ConfigObjects = append(defaults, coders.ConfigObject{
		FileType:     coders.FileTypeText,
		RelativePath: instructionPath(coder),
		Content:      string(data),
	})
	return opts, nil
}

func instructionPath(coder coders.Coder) string {
	for path, role := range coder.DefaultConfigPaths() {
		if role == coders.RolePrimaryInstruction {
			return path
		}
	}
	return "INSTRUCTIONS.md"
}

func resolveAuditDB(flagValue, workdirPath string) string {
	if flagValue != "" {
		return flagValue
	}
	if os.Getenv("METACODER_AUDIT_DB") != "" {
		// Logger resolves the env var itself.
		return ""
	}
	abs, err := filepath.Abs(workdirPath)
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(abs), "metacoder-audit.db")
}

func printResult(result *coders.Output, verbose bool) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("RESULTS")
	fmt.Println(strings.Repeat("=", 50))

	if result.ResultText != "" {
		fmt.Println("\nResult:")
		fmt.Println(result.ResultText)
	}
	if result.Stdout != "" {
		fmt.Println("\nStandard Output:")
		fmt.Println(result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Println("\nStandard Error:")
		fmt.Println(result.Stderr)
	}
	if result.TotalCostUSD != nil {
		fmt.Printf("\nTotal cost: $%.4f\n", *result.TotalCostUSD)
	}
	if result.Success != nil {
		if *result.Success {
			fmt.Println("\nSuccess")
		} else {
			fmt.Println("\nFailed")
		}
	}
	if verbose && len(result.Messages) > 0 {
		fmt.Printf("\nStructured messages (%d total)\n", len(result.Messages))
		for i, message := range result.Messages {
			fmt.Printf("  %d. %v\n", i+1, message)
		}
	}
}

func runCoders(args []string) error {
	fs := flag.NewFlagSet("coders", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, name := range coders.Names() {
		coder, err := coders.New(name, coders.Options{Workdir: "."})
		if err != nil {
			return err
		}
		status := "not installed"
		if coder.IsAvailable() {
			status = "available"
		}
		fmt.Printf("%-10s %s\n", name, status)
	}
	return nil
}

func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dbPath := fs.String("db", "", "Audit DB path (default: $METACODER_AUDIT_DB or ./metacoder-audit.db)")
	limit := fs.Int("limit", 20, "Maximum number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events, err := audit.NewLogger(*dbPath).RecentEvents(*limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no audit events recorded")
		return nil
	}
	for _, event := range events {
		fmt.Printf("%s  %-14s %-8s %s\n", event.TS.Format(time.RFC3339), event.Type, event.Actor, event.PayloadJSON)
	}
	return nil
}

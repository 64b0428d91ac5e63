// Command converse chats with an LLM provider and lets it call local and MCP
// functions.
//
// Usage:
//
//	converse [-config path] [-model m] [-system text] [-verbose]
//	converse -prompt "question"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/converse/chat"
	"github.com/aschepis/backscratcher/converse/config"
	"github.com/aschepis/backscratcher/converse/functions"
	"github.com/aschepis/backscratcher/converse/functions/builtin"
	applog "github.com/aschepis/backscratcher/converse/logger"
	"github.com/aschepis/backscratcher/converse/mcp"
	"github.com/aschepis/backscratcher/converse/orchestrator"
	"github.com/aschepis/backscratcher/converse/retry"
	"github.com/aschepis/backscratcher/converse/window"
	"github.com/rs/zerolog"
)

const mcpStartupTimeout = 60 * time.Second

// errUsage marks command-line misuse.
var errUsage = errors.New("usage")

type options struct {
	configPath string
	logFile    string
	pretty     bool
	model      string
	system     string
	prompt     string
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("converse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: $CONVERSE_CONFIG_PATH or ~/.converse/config.yaml)")
	fs.StringVar(&opts.logFile, "logfile", "", "Path to log file (default: "+applog.DefaultLogFile+" unless -pretty is set)")
	fs.BoolVar(&opts.pretty, "pretty", false, "Log to stderr with pretty console output (only valid when logfile is not set)")
	fs.StringVar(&opts.model, "model", "", "Model to use, overriding the config")
	fs.StringVar(&opts.system, "system", "", "System prompt, overriding the config")
	fs.StringVar(&opts.prompt, "prompt", "", "Answer a single instruction and exit")
	fs.BoolVar(&opts.verbose, "verbose", false, "Show function calls as they run")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("%w: %v", errUsage, err)
	}

	if opts.logFile != "" && opts.pretty {
		return opts, fmt.Errorf("%w: -logfile and -pretty are mutually exclusive", errUsage)
	}
	if opts.logFile == "" && !opts.pretty {
		opts.logFile = applog.DefaultLogFile
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger, err := applog.InitWithOptions(opts.logFile, opts.pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info().Msg("Starting converse")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.system != "" {
		cfg.SystemPrompt = opts.system
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := config.NewProviderClient(cfg, logger)
	if err != nil {
		return err
	}
	orch := orchestrator.New(
		window.NewBuilder(cfg.Budgets(), logger),
		retry.NewInvoker(client, cfg.RetryOptions(), logger),
		logger,
	)

	if opts.prompt != "" {
		answer, err := orch.Instruct(ctx, cfg.SystemPrompt, opts.prompt, cfg.Model, cfg.Temperature)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, answer)
		return nil
	}

	registry, closeMCP, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeMCP()

	var enabled []string
	if len(cfg.Functions.Enabled) > 0 {
		enabled = cfg.Functions.Enabled
	}
	session := chat.NewSession(orch, registry, chat.Options{
		SystemContent: cfg.SystemPrompt,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		Enabled:       enabled,
		MaxRounds:     cfg.Functions.MaxRounds,
	}, logger)

	fmt.Fprintf(stdout, "converse: %s via %s, %d functions\n", cfg.Model, cfg.Provider, registry.Len())
	return newREPL(session, stdin, stdout, opts.verbose).run(ctx)
}

// buildRegistry registers the built-in functions and the tools of every
// reachable MCP server, then seals the registry.
func buildRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*functions.Registry, func(), error) {
	registry := functions.NewRegistry(functions.NewSchemaValidator(), logger)

	builtins := builtin.New(builtin.Options{Workspace: cfg.Functions.Workspace}, logger)
	if err := builtins.Register(registry); err != nil {
		return nil, nil, err
	}

	mcpCtx, cancel := context.WithTimeout(ctx, mcpStartupTimeout)
	defer cancel()
	clients := mcp.Connect(mcpCtx, logger, registry, cfg.MCPServers(logger))

	registry.Seal()
	closeAll := func() {
		for _, c := range clients {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close MCP client")
			}
		}
	}
	return registry, closeAll, nil
}

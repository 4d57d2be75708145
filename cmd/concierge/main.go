// Command concierge runs the salon conversational assistant: an HTTP chat
// endpoint backed by stage-routed model agents with booking tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/salonkit/concierge/pkg/config"
	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/llm"
	"github.com/salonkit/concierge/pkg/logger"
	"github.com/salonkit/concierge/pkg/observability"
	"github.com/salonkit/concierge/pkg/orchestrator"
	"github.com/salonkit/concierge/pkg/retry"
	"github.com/salonkit/concierge/pkg/router"
	"github.com/salonkit/concierge/pkg/server"
	"github.com/salonkit/concierge/pkg/stage"
	"github.com/salonkit/concierge/pkg/store"
	"github.com/salonkit/concierge/pkg/tools"
	"github.com/salonkit/concierge/pkg/yclients"
)

type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the concierge server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"concierge.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("concierge version %s\n", version)
	return nil
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	srv, cleanup, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.Start(ctx)
}

// assemble builds the full service graph from config.
func assemble(cfg *config.Config) (*server.Server, func(), error) {
	log := logger.GetLogger()
	metrics := observability.NewMetrics()

	modelClient := llm.NewClient(llm.Config{
		BaseURL:         cfg.Model.BaseURL,
		APIKey:          cfg.Model.APIKey,
		Project:         cfg.Model.Project,
		Model:           cfg.Model.Name,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Temperature:     cfg.Model.Temperature,
		Timeout:         cfg.Model.Timeout.Std(),
	})

	// Shared by the hand-off tool (reads) and the router (writes), so
	// manager alerts quote the conversation that led to them.
	transcript := escalation.NewTranscript(escalation.DefaultTranscriptLimit)

	catalog, err := buildToolCatalog(cfg, transcript)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := buildTokenStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := tokens.Close(); err != nil {
			log.Error("failed to close token store", "error", err)
		}
	}

	agents := make(map[stage.Stage]retry.TurnRunner, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		reg, err := registryFor(catalog, agentCfg.Tools)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("agent %q: %w", name, err)
		}

		orch := orchestrator.New(agentCfg.Instructions, modelClient, reg,
			orchestrator.WithName(name),
			orchestrator.WithMaxRounds(agentCfg.MaxRounds),
			orchestrator.WithMaxOutputTokens(agentCfg.MaxOutputTokens),
			orchestrator.WithTemperature(agentCfg.Temperature),
			orchestrator.WithMetrics(metrics),
			orchestrator.WithLogger(log),
		)
		agents[stage.Stage(name)] = retry.New(orch,
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithBaseDelay(cfg.Retry.BaseDelay.Std()),
			retry.WithLogger(log),
		)
	}

	// The classifier is a tool-less agent on the same endpoint.
	classifierOrch := orchestrator.New(cfg.Classifier.Instructions, modelClient, tools.NewRegistry(),
		orchestrator.WithName("classifier"),
		orchestrator.WithMaxRounds(1),
		orchestrator.WithTemperature(cfg.Classifier.Temperature),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(log),
	)
	classifier := stage.NewClassifier(
		retry.New(classifierOrch,
			retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
			retry.WithBaseDelay(cfg.Retry.BaseDelay.Std()),
			retry.WithLogger(log),
		),
		stage.WithFallback(stage.Stage(cfg.Classifier.FallbackStage)),
		stage.WithClassifierLogger(log),
	)

	rt, err := router.New(classifier, agents, tokens,
		router.WithFallbackStage(stage.Stage(cfg.Classifier.FallbackStage)),
		router.WithTranscript(transcript),
		router.WithLogger(log),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	srv := server.New(cfg.Server, rt,
		server.WithMetrics(metrics),
		server.WithLogger(log),
	)
	return srv, cleanup, nil
}

// buildToolCatalog creates every available tool once. The booking tools need
// a configured backend; without one only the manager hand-off is available.
func buildToolCatalog(cfg *config.Config, transcript *escalation.Transcript) (map[string]tools.Tool, error) {
	catalog := map[string]tools.Tool{}
	add := func(t tools.Tool) {
		catalog[normalizeToolName(t.Definition().Name)] = t
	}

	add(tools.NewCallManagerTool(transcript.Recent))

	if cfg.YClients.CompanyID != "" {
		backend, err := yclients.NewClient(yclients.Config{
			BaseURL:    cfg.YClients.BaseURL,
			AuthHeader: cfg.YClients.AuthHeader(),
			CompanyID:  cfg.YClients.CompanyID,
			Timeout:    cfg.YClients.Timeout.Std(),
			MaxRetries: cfg.YClients.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range tools.BookingToolset(backend) {
			add(t)
		}
	}
	return catalog, nil
}

// registryFor selects the named tools for one agent. An empty list grants
// the whole catalog.
func registryFor(catalog map[string]tools.Tool, names []string) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if len(names) == 0 {
		for _, t := range catalog {
			if err := reg.Register(t); err != nil {
				return nil, err
			}
		}
		return reg, nil
	}

	for _, name := range names {
		t, ok := catalog[normalizeToolName(name)]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", name)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// normalizeToolName lets config refer to tools as either "CreateBooking" or
// "create_booking".
func normalizeToolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

func buildTokenStore(cfg config.StoreConfig) (store.TokenStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLStore(cfg.Path)
	default:
		return store.NewMemoryStore(), nil
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("concierge"),
		kong.Description("Salon conversational concierge."),
		kong.UsageOnError(),
	)

	if err := initLogger(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx.FatalIfErrorf(ctx.Run(&cli))
}

func initLogger(cli *CLI) error {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}

	output := os.Stderr
	if cli.LogFile != "" {
		file, _, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return err
		}
		output = file
	}

	logger.Init(level, output, cli.LogFormat)
	return nil
}

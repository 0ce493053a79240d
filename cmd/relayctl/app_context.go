package main

import (
	"context"
	"os"

	"golang.org/x/term"

	"github.com/relaystack/relayctl/internal/artifact"
	"github.com/relaystack/relayctl/internal/cache"
	"github.com/relaystack/relayctl/internal/config"
	"github.com/relaystack/relayctl/internal/database"
	"github.com/relaystack/relayctl/internal/logger"
	"github.com/relaystack/relayctl/internal/runner"
	"github.com/relaystack/relayctl/internal/service"
	"github.com/relaystack/relayctl/internal/step"
)

// appContext bundles the collaborators every command wires the same way:
// parsed config, logger, command runner, service controller and the
// config mutator.
type appContext struct {
	cfg      *config.Config
	log      *logger.Logger
	run      runner.Runner
	control  *service.Controller
	mutator  *artifact.Mutator
	executor *step.Executor

	interactive bool
}

func newAppContext(root *rootFlags) (*appContext, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}

	level := "info"
	if root.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return nil, err
	}

	run := runner.System{}
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && !root.yes

	var decider step.Decider = step.Policy{MaxRetries: 0}
	if interactive {
		decider = &step.Prompt{In: os.Stdin, Out: os.Stderr}
	}

	return &appContext{
		cfg:         cfg,
		log:         log,
		run:         run,
		control:     service.NewController(run, log),
		mutator:     artifact.NewMutator(log, root.dryRun),
		executor:    step.NewExecutor(decider, log),
		interactive: interactive,
	}, nil
}

// connectDatabase resolves secrets and opens a database client. Callers
// own the Close.
func (app *appContext) connectDatabase(ctx context.Context) (*database.Client, error) {
	secrets, err := app.cfg.ResolveSecrets()
	if err != nil {
		return nil, err
	}
	return database.Connect(ctx, app.cfg.Database.DSN(secrets.DBPassword), app.log)
}

// probeCache resolves secrets and pings the cache with the default
// bounded-retry policy.
func (app *appContext) probeCache(ctx context.Context) error {
	secrets, err := app.cfg.ResolveSecrets()
	if err != nil {
		return err
	}
	return cache.Probe(ctx, app.cfg.Cache.Addr, secrets.CachePassword, cache.DefaultProbePolicy, app.log)
}

// main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	apiclient "agrofin/finsync/apiClient"
	"agrofin/finsync/appcontext"
	"agrofin/finsync/cache"
	"agrofin/finsync/config"
	"agrofin/finsync/relational"
	"agrofin/finsync/reports"
	"agrofin/finsync/server"
	"agrofin/finsync/syncer"
	"agrofin/finsync/synthetic"
)

func main() {
	// The level is raised or lowered once the configuration is loaded.
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if len(os.Args) < 2 {
		logger.Error("Usage: finsync <sync|serve|seed|trigger-sync> [options]")
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if err := run(logger, level, command, args); err != nil {
		logger.Error("Application terminated with an error", "error", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, level *slog.LevelVar, command string, args []string) error {
	ctx, stop := signal.NotifyContext(appcontext.WithLogger(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig(ctx, logger)
	level.Set(cfg.LogLevel)

	switch command {
	case "sync":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return runSync(ctx, cfg)
	case "serve":
		return runServe(ctx, args, cfg)
	case "seed":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return synthetic.RunSeed(ctx, logger, args, cfg)
	case "trigger-sync":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return runTriggerSync(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runSync(ctx context.Context, cfg *config.Config) error {
	result := syncer.New(syncer.NewOpener(cfg)).RunSync(ctx)
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Status != syncer.StatusSuccess {
		return fmt.Errorf("sync finished with status %s", result.Status)
	}
	return nil
}

func runServe(ctx context.Context, args []string, cfg *config.Config) error {
	logger := appcontext.LoggerFromContext(ctx)
	serveFlagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := serveFlagSet.String("addr", cfg.HTTPAddr, "Address to listen on")
	if err := serveFlagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	engine, err := relational.Open(ctx, cfg.SQLDriver, cfg.SQLDSN)
	if err != nil {
		return fmt.Errorf("connection to relational store failed: %w", err)
	}
	defer func() {
		if deferErr := engine.Close(); deferErr != nil {
			logger.ErrorContext(ctx, "Error closing relational store", "error", deferErr)
		}
	}()

	reporter := reports.New(engine.DB(), cache.New(cfg.ReportCacheTTL))
	srv := server.New(syncer.New(syncer.NewOpener(cfg)), reporter)
	return server.ListenAndServe(ctx, *addr, srv.Routes())
}

func runTriggerSync(ctx context.Context, args []string) error {
	triggerFlagSet := flag.NewFlagSet("trigger-sync", flag.ContinueOnError)
	baseURL := triggerFlagSet.String("url", apiclient.DefaultBaseURL, "Base URL of the finsync server")
	if err := triggerFlagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	client, err := apiclient.NewAPIClient(nil, *baseURL)
	if err != nil {
		return err
	}
	_, result, err := client.TriggerSync(ctx)
	if err != nil {
		return fmt.Errorf("sync trigger failed: %w", err)
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Status != syncer.StatusSuccess {
		return fmt.Errorf("sync finished with status %s", result.Status)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

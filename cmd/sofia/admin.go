package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Strob0t/Sofia/internal/adapter/litellm"
	"github.com/Strob0t/Sofia/internal/adapter/postgres"
	"github.com/Strob0t/Sofia/internal/config"
	"github.com/Strob0t/Sofia/internal/middleware"
)

// runAdmin dispatches admin subcommands (migrate, list-orchestrations, list-models).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "list-orchestrations":
		return runAdminListOrchestrations(args[1:])
	case "list-models":
		return runAdminListModels(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: sofia admin <command> [options]

Commands:
  migrate               Apply pending database migrations
  list-orchestrations   List the orchestrations of a tenant
  list-models           List the models served by the LiteLLM proxy
  help                  Show this help message

Examples:
  sofia admin migrate
  sofia admin migrate --status
  sofia admin list-orchestrations --tenant 6f1c...
  sofia admin list-models
`)
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	statusOnly := fs.Bool("status", false, "print the current version without migrating")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	if !*statusOnly {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

func runAdminListOrchestrations(args []string) error {
	fs := flag.NewFlagSet("list-orchestrations", flag.ContinueOnError)
	tenant := fs.String("tenant", middleware.DefaultTenantID, "tenant ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := middleware.WithTenantID(context.Background(), *tenant)
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	items, err := postgres.NewStore(pool).ListOrchestrations(ctx)
	if err != nil {
		return fmt.Errorf("list orchestrations: %w", err)
	}

	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "No orchestrations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTRATEGY\tSTATUS\tSTEPS\tUPDATED")
	for i := range items {
		o := &items[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.ID, o.Name, o.Strategy, o.Status, len(o.Agents), o.UpdatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func runAdminListModels(args []string) error {
	fs := flag.NewFlagSet("list-models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Timeout)
	models, err := client.ListModels(context.Background())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\n", m.ModelName, m.Provider)
	}
	return w.Flush()
}

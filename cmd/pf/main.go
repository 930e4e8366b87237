package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/client"
	"github.com/alfredjeanlab/pipefilter/internal/ui"
)

var (
	catalogSource string
	filtersPath   string
	databaseURL   string
	nameConverter string

	remote    string
	transport string
	token     string

	jsonOutput bool
	logLevel   string
	noColor    bool

	// remoteClient is set by PersistentPreRunE when --remote is given.
	remoteClient client.Client
	logger       *slog.Logger
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "pf <command>",
	Short:         "Compile query-string filters into aggregation pipelines",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		if noColor {
			ui.ForceNoColor()
		}

		if remote == "" {
			return nil
		}
		switch transport {
		case "http":
			remoteClient = client.NewHTTPClient(remote, token)
		case "grpc":
			c, err := client.NewGRPCClient(remote, token)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			remoteClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if remoteClient != nil {
			remoteClient.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&catalogSource, "catalog", os.Getenv("PIPEFILTER_CATALOG"), "catalog TOML path or s3://bucket/key")
	pf.StringVar(&filtersPath, "filters", os.Getenv("PIPEFILTER_FILTERS"), "filter configuration TOML path")
	pf.StringVar(&databaseURL, "database-url", os.Getenv("PIPEFILTER_DATABASE_URL"), "Postgres catalog store")
	pf.StringVar(&nameConverter, "names", envOr("PIPEFILTER_NAME_CONVERTER", "identity"), "property name converter (identity or snake_case)")
	pf.StringVar(&remote, "remote", os.Getenv("PIPEFILTER_REMOTE"), "compile on a running server (HTTP URL or gRPC address)")
	pf.StringVar(&transport, "transport", "http", "transport protocol for --remote (http or grpc)")
	pf.StringVar(&token, "token", os.Getenv("PIPEFILTER_AUTH_TOKEN"), "bearer token for --remote")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")
	pf.StringVar(&logLevel, "log-level", envOr("PIPEFILTER_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipelines", Title: "Pipelines:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Pipelines
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(resourcesCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderWarn("Error:"), err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/catalog/postgres"
	"github.com/alfredjeanlab/pipefilter/internal/events"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Short:   "Inspect or publish the entity catalog",
	GroupID: "system",
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the catalog as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cmd.Context(), flagCatalogSpec(catalogSource))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cat.Definitions())
		}
		return catalog.Encode(cmd.OutOrStdout(), cat.Definitions())
	},
}

var catalogPushCmd = &cobra.Command{
	Use:   "push <path|s3://bucket/key>",
	Short: "Replace the Postgres catalog with a TOML catalog",
	Long: `Replace the catalog stored in Postgres (--database-url) with the one read
from a TOML file or S3 object. When PIPEFILTER_NATS_URL is set, running
servers are told to reload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if databaseURL == "" {
			return fmt.Errorf("catalog push needs --database-url")
		}
		ctx := cmd.Context()
		cat, err := loadCatalog(ctx, flagCatalogSpec(args[0]))
		if err != nil {
			return err
		}

		store, err := postgres.Open(databaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Replace(ctx, cat.Definitions()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replaced catalog with %d entities from %s\n", len(cat.Entities()), args[0])

		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			return nil
		}
		return announceCatalog(ctx, natsURL, events.CatalogReplaced{
			Entities: cat.Entities(),
			Source:   args[0],
			At:       time.Now().UTC(),
		})
	},
}

var catalogExportCmd = &cobra.Command{
	Use:   "export <path|s3://bucket/key>",
	Short: "Write the configured catalog to a TOML file or S3 object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cat, err := loadCatalog(ctx, flagCatalogSpec(catalogSource))
		if err != nil {
			return err
		}
		dest := args[0]
		if src, ok := catalog.ParseS3URL(dest); ok {
			spec := flagCatalogSpec(dest)
			src.Region, src.Endpoint = spec.S3Region, spec.S3Endpoint
			err = catalog.SaveS3(ctx, src, cat.Definitions())
		} else {
			err = writeCatalogFile(dest, cat.Definitions())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d entities to %s\n", len(cat.Entities()), dest)
		return nil
	},
}

func writeCatalogFile(path string, entities []catalog.Entity) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := catalog.Encode(f, entities); err != nil {
		f.Close()
		return fmt.Errorf("encode catalog: %w", err)
	}
	return f.Close()
}

func init() {
	catalogPushCmd.Flags().String("nats-url", os.Getenv("PIPEFILTER_NATS_URL"), "announce the replacement on this NATS server")
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogPushCmd)
	catalogCmd.AddCommand(catalogExportCmd)
}

func flagCatalogSpec(source string) catalogSpec {
	return catalogSpec{
		Source:      source,
		DatabaseURL: databaseURL,
		S3Region:    envOr("PIPEFILTER_S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("PIPEFILTER_S3_ENDPOINT"),
	}
}

func announceCatalog(ctx context.Context, natsURL string, evt events.CatalogReplaced) error {
	pub, err := events.NewNATSPublisher(natsURL)
	if err != nil {
		return err
	}
	defer pub.Close()
	if err := pub.Publish(ctx, events.TopicCatalogReplaced, evt); err != nil {
		return err
	}
	return pub.Flush()
}

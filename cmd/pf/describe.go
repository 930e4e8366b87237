package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/ui"
)

var describeCmd = &cobra.Command{
	Use:     "describe <resource>",
	Short:   "List the query parameters a resource understands",
	GroupID: "pipelines",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var (
			params []filter.ParameterDescriptor
			err    error
		)
		if remoteClient != nil {
			params, err = remoteClient.Describe(ctx, args[0])
		} else {
			c, cerr := localCompiler(ctx)
			if cerr != nil {
				return cerr
			}
			params, err = c.Describe(args[0])
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), params)
		}
		printParameterTable(cmd.OutOrStdout(), params)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:     "schema <resource>",
	Short:   "Print the JSON schema of a resource's parameters",
	GroupID: "pipelines",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteClient != nil {
			return fmt.Errorf("schema is only available locally; drop --remote or GET /v1/resources/%s/schema", args[0])
		}
		c, err := localCompiler(cmd.Context())
		if err != nil {
			return err
		}
		s, err := c.Schema(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

var resourcesCmd = &cobra.Command{
	Use:     "resources",
	Short:   "List configured resources",
	GroupID: "pipelines",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var names []string
		if remoteClient != nil {
			var err error
			if names, err = remoteClient.Resources(cmd.Context()); err != nil {
				return err
			}
		} else {
			c, err := localCompiler(cmd.Context())
			if err != nil {
				return err
			}
			names = c.Resources()
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), names)
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderAccent(n))
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check a running server (requires --remote)",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if remoteClient == nil {
			return fmt.Errorf("health needs --remote")
		}
		status, err := remoteClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

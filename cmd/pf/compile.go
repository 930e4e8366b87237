package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/client"
	"github.com/alfredjeanlab/pipefilter/internal/query"
	"github.com/alfredjeanlab/pipefilter/internal/server"
)

var compileCmd = &cobra.Command{
	Use:   "compile <resource> [query]",
	Short: "Compile a query string into a pipeline",
	Long: `Compile a query string into an aggregation pipeline for a resource.

The query is a URL query string such as "title=dune&order[title]=desc".
Pass "-" to read it from stdin. Prints the stage list; --json prints the
compilation id, resource and entity as well.`,
	Example: `  pf compile books 'pages[between]=100..300&order[pages]=desc'
  pf compile books 'q=dune' --remote http://localhost:8080`,
	GroupID: "pipelines",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, _ := cmd.Flags().GetString("op")
		rawQuery, err := queryArg(cmd.InOrStdin(), args[1:])
		if err != nil {
			return err
		}
		res, err := compileQuery(cmd, args[0], op, rawQuery)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printJSON(cmd.OutOrStdout(), res.Pipeline)
	},
}

func init() {
	compileCmd.Flags().String("op", server.DefaultOperation, "operation name passed to filters")
}

// queryArg returns the optional query argument, reading stdin for "-".
func queryArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	if args[0] != "-" {
		return strings.TrimPrefix(args[0], "?"), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read query from stdin: %w", err)
	}
	return strings.TrimPrefix(strings.TrimSpace(string(data)), "?"), nil
}

func compileQuery(cmd *cobra.Command, resource, op, rawQuery string) (*client.CompileResult, error) {
	ctx := cmd.Context()
	if remoteClient != nil {
		return remoteClient.Compile(ctx, resource, op, rawQuery)
	}
	c, err := localCompiler(ctx)
	if err != nil {
		return nil, err
	}
	values, err := query.Decode(rawQuery)
	if err != nil {
		return nil, err
	}
	res, err := c.Compile(ctx, resource, op, values)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res.Pipeline)
	if err != nil {
		return nil, err
	}
	return &client.CompileResult{ID: res.ID, Resource: res.Resource, Entity: res.Entity, Pipeline: raw}, nil
}


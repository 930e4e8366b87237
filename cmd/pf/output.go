package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/pipefilter/internal/filter"
	"github.com/alfredjeanlab/pipefilter/internal/ui"
)

// printJSON writes v as JSON, indented for a terminal and compact when piped.
// json.RawMessage values keep their key order either way.
func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	var buf bytes.Buffer
	if ui.IsTerminal(w) {
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("indent output: %w", err)
		}
	} else {
		buf.Write(data)
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func printParameterTable(w io.Writer, params []filter.ParameterDescriptor) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPROPERTY\tREQUIRED\tDESCRIPTION")
	for _, p := range params {
		typ := p.Type
		if p.IsArray {
			typ += "[]"
		}
		if len(p.Enum) > 0 {
			typ += " (" + strings.Join(p.Enum, "|") + ")"
		}
		required := ""
		if p.Required {
			required = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ui.RenderAccent(p.Name), typ, p.Property, required, p.Description)
	}
	tw.Flush()
	fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("\n%d parameters", len(params))))
}

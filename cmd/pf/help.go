package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/ui"
)

var (
	// Unindented "Title:" lines, except "Usage:".
	reSection = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)
	// "  name   description" command rows.
	reCommandRow = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)
	reFlagType   = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringSlice)`)
	reDefault    = regexp.MustCompile(`\(default "[^"]*"\)`)
)

// colorizedHelpFunc renders cobra's usage text with colors when stdout
// supports them.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if noColor || !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = reSection.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, "Usage:") {
			return m
		}
		return ui.RenderAccent(strings.TrimSpace(m))
	})
	s = reCommandRow.ReplaceAllString(s, "${1}"+ui.RenderAccent("${2}")+"${3}")
	s = reFlagType.ReplaceAllStringFunc(s, func(m string) string {
		parts := reFlagType.FindStringSubmatch(m)
		return parts[1] + ui.RenderMuted(parts[2])
	})
	return reDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}

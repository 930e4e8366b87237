package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/pipefilter/internal/events"
	"github.com/alfredjeanlab/pipefilter/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [subject]",
	Short: "Follow compilation events on NATS",
	Long: `Follow compilation events on NATS. The subject defaults to "pipefilter.>";
use "pipefilter.pipeline.failed" to follow failures only.`,
	GroupID: "system",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			return fmt.Errorf("watch needs --nats-url or PIPEFILTER_NATS_URL")
		}
		subject := "pipefilter.>"
		if len(args) == 1 {
			subject = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watchEvents(ctx, cmd.OutOrStdout(), natsURL, subject)
	},
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("PIPEFILTER_NATS_URL"), "NATS server URL")
}

func watchEvents(ctx context.Context, w io.Writer, natsURL, subject string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(subject)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				fmt.Fprintln(w, string(msg.Data))
				continue
			}
			fmt.Fprintln(w, formatEvent(msg))
		}
	}
}

// formatEvent renders one event as a single line.
func formatEvent(msg events.Message) string {
	stamp := ui.RenderMuted(time.Now().Format("15:04:05"))
	switch msg.Subject {
	case events.TopicPipelineCompiled:
		var e events.PipelineCompiled
		if json.Unmarshal(msg.Data, &e) == nil {
			return fmt.Sprintf("%s %s %s %s (%s) %d stages", stamp, ui.RenderAccent("compiled"), e.ID, e.Resource, e.Operation, e.Stages)
		}
	case events.TopicPipelineFailed:
		var e events.PipelineFailed
		if json.Unmarshal(msg.Data, &e) == nil {
			return fmt.Sprintf("%s %s %s %s: %s", stamp, ui.RenderWarn("failed"), e.ID, e.Resource, e.Error)
		}
	case events.TopicCatalogReplaced:
		var e events.CatalogReplaced
		if json.Unmarshal(msg.Data, &e) == nil {
			return fmt.Sprintf("%s %s %d entities from %s", stamp, ui.RenderAccent("catalog"), len(e.Entities), e.Source)
		}
	}
	return fmt.Sprintf("%s %s %s", stamp, msg.Subject, msg.Data)
}

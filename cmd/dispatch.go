package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/verimail/internal/event"
	"github.com/shaharia-lab/verimail/internal/logger"
)

// NewDispatchCmd returns the "dispatch" subcommand, which processes a single
// delivery read from a file or stdin.
func NewDispatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch [file]",
		Short: "Dispatch one delivery from a file or stdin",
		Long: `Read one delivery (a Records batch, an SNS notification, a bare user
payload or newline-delimited payloads) from the given file, or stdin when no
file or "-" is given, and dispatch every message in it.

The batch outcome is printed as JSON. The command exits non-zero when any
message failed.

Examples:
  verimail dispatch event.json
  echo '{"email":"alice@example.com","firstName":"Alice"}' | verimail dispatch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}

			body, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			msgs, err := event.ParseBatch(body)
			if errors.Is(err, event.ErrSubscriptionControl) {
				fmt.Fprintln(cmd.ErrOrStderr(), "subscription control message; nothing to dispatch")
				return nil
			}
			if err != nil {
				return fmt.Errorf("parsing delivery: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logger.NewStderrLogger(cfg.SlogLevel())
			p, err := buildPipeline(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			out := p.dispatcher.Dispatch(ctx, msgs)
			if err := p.Close(); err != nil {
				log.Warn("closing pipeline", "error", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if out.Failed > 0 {
				return fmt.Errorf("%d of %d messages failed", out.Failed, len(out.Results))
			}
			return nil
		},
	}
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return b, nil
}

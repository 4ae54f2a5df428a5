package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/verimail/internal/storage"
)

// NewDeliveriesCmd returns the "deliveries" subcommand that prints the local
// delivery log.
func NewDeliveriesCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var recipient string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show recent dispatch outcomes from the delivery log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.cfg.DeliveryLogPath()
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no delivery log at %s: %w", path, err)
			}

			db, _, err := storage.NewSQLiteDB(path)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := storage.NewSQLiteDeliveryLogStore(db).ListDeliveries(cmd.Context(), recipient, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDeliveries(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Only show entries for this address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

var failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))

func renderDeliveries(entries []storage.DeliveryLogEntry) string {
	if len(entries) == 0 {
		return "No deliveries recorded."
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TIME", "MESSAGE", "RECIPIENT", "TRANSPORT", "STAGE", "STATUS", "ERROR", "MS")
	for _, e := range entries {
		status := e.Status
		if status == "failed" {
			status = failedStyle.Render(status)
		}
		errCol := e.ErrorKind
		if e.ErrorMsg != "" {
			errCol = e.ErrorKind + ": " + truncate(e.ErrorMsg, 48)
		}
		t.Row(
			e.CreatedAt.Local().Format(time.DateTime),
			truncate(e.MessageID, 24),
			e.Recipient,
			e.Transport,
			e.Stage,
			status,
			errCol,
			strconv.FormatInt(e.DurationMS, 10),
		)
	}
	return t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

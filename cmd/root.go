package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/verimail/internal/config"
)

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	envFiles []string
	cfg      *config.AppConfig
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "verimail",
		Short: "Verification mail dispatcher",
		Long: `verimail reacts to "user registered" notifications by sending a
verification email and marking the user row as mailed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.envFiles...)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil,
		"Load environment variables from these files first (default ./.env when present)")

	root.AddCommand(
		NewServeCmd(opts),
		NewDispatchCmd(opts),
		NewDeliveriesCmd(opts),
		NewVersionCmd(),
		NewUpdateCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

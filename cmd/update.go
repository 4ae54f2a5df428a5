package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/verimail/internal/build"
)

const releaseSlug = "shaharia-lab/verimail"

// NewUpdateCmd returns the "update" subcommand that self-updates the binary.
func NewUpdateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update verimail to the latest release",
		Long:  "Check GitHub releases for a newer version of verimail and update the binary in place.",
		// Updating needs no mail or database configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// currentVersion parses the build version, rejecting dev builds.
func currentVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(build.Version)
	if err != nil {
		return nil, fmt.Errorf("cannot update build %q; install a tagged release first", build.Version)
	}
	return v, nil
}

func runUpdate(ctx context.Context, in io.Reader, out io.Writer, skipConfirm bool) error {
	current, err := currentVersion()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Current version: %s\n", current)
	fmt.Fprint(out, "Checking for updates... ")

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("creating updater: %w", err)
	}

	release, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}
	if !found {
		fmt.Fprintln(out, "no releases found.")
		return nil
	}

	latest, err := semver.NewVersion(release.Version())
	if err != nil {
		return fmt.Errorf("parsing release version %q: %w", release.Version(), err)
	}
	if !latest.GreaterThan(current) {
		fmt.Fprintln(out, "already up to date.")
		return nil
	}

	fmt.Fprintf(out, "found %s\n", latest)

	if !skipConfirm {
		fmt.Fprintf(out, "Update to %s? [y/N] ", latest)
		var input string
		fmt.Fscanln(in, &input) //nolint:errcheck
		if input != "y" && input != "Y" {
			fmt.Fprintln(out, "Update canceled.")
			return nil
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding current executable: %w", err)
	}

	fmt.Fprintf(out, "Updating to %s...\n", latest)
	if err := updater.UpdateTo(ctx, release, exe); err != nil {
		return fmt.Errorf("updating: %w", err)
	}

	fmt.Fprintf(out, "Updated to %s. Restart verimail to use the new version.\n", latest)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devgate/internal/build"
)

const releaseSlug = "shaharia-lab/devgate"

// NewUpdateCmd returns the "update" subcommand that self-updates the binary.
func NewUpdateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update devgate to the latest release",
		Long:  "Check GitHub releases for a newer version of devgate and update the binary in place.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// currentVersion parses the build version. Dev builds and anything that is
// not a semantic version cannot be updated.
func currentVersion(v string) (*semver.Version, error) {
	if v == "dev" || v == "unknown" {
		return nil, fmt.Errorf("cannot update a dev build; install a tagged release first")
	}
	sv, err := semver.NewVersion(strings.TrimPrefix(v, "v"))
	if err != nil {
		return nil, fmt.Errorf("cannot update build version %q: %w", v, err)
	}
	return sv, nil
}

func runUpdate(ctx context.Context, in io.Reader, out io.Writer, skipConfirm bool) error {
	if !build.IsRelease() {
		return fmt.Errorf("cannot update a dev build; install a tagged release first")
	}
	current, err := currentVersion(build.Version)
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

	if !found || !release.GreaterThan(current.String()) {
		fmt.Fprintln(out, "already up to date.")
		return nil
	}

	fmt.Fprintf(out, "found %s\n", release.Version())

	if !skipConfirm {
		fmt.Fprintf(out, "Update to %s? [y/N] ", release.Version())
		var input string
		fmt.Fscanln(in, &input) //nolint:errcheck,gosec
		if input != "y" && input != "Y" {
			fmt.Fprintln(out, "Update canceled.")
			return nil
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding current executable: %w", err)
	}

	fmt.Fprintf(out, "Updating to %s...\n", release.Version())
	if err := updater.UpdateTo(ctx, release, exe); err != nil {
		return fmt.Errorf("updating: %w", err)
	}

	fmt.Fprintf(out, "Updated to %s. Restart devgate to use the new version.\n", release.Version())
	return nil
}

package cmd

import (
	"fmt"
	"runtime"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/s0up4200/sinvoice/config"
)

const defaultRepository = "s0up4200/sinvoice"

func init() {
	rootCmd.AddCommand(versionCmd, updateCmd)
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sinvoice %s (built %s, %s/%s)\n", version, buildTime, runtime.GOOS, runtime.GOARCH)
	},
}

// updateCmd replaces the running binary with the latest release
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update sinvoice to the latest release",
	Args:  cobra.NoArgs,
	// Credentials are not needed to update, so only the config file is read
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		repo := defaultRepository
		if loaded, err := config.Load(cfgFile); err == nil {
			logger = setupLogger(loaded.Logging)
			if loaded.Update.Repository != "" {
				repo = loaded.Update.Repository
			}
		}
		updateRepository = repo
		return nil
	},
	RunE: runUpdate,
}

var updateRepository = defaultRepository

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	current, err := semver.ParseTolerant(version)
	if err != nil {
		return fmt.Errorf("cannot update a development build (version %q)", version)
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(updateRepository))
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s/%s in %s", runtime.GOOS, runtime.GOARCH, updateRepository)
	}

	latestVersion, err := semver.ParseTolerant(latest.Version())
	if err != nil {
		return fmt.Errorf("release has an invalid version %q: %w", latest.Version(), err)
	}

	if latestVersion.LTE(current) {
		fmt.Fprintf(w, "✓ sinvoice %s is up to date\n", current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	logger.Info().
		Str("current", current.String()).
		Str("latest", latestVersion.String()).
		Msg("Updating sinvoice")

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to update binary: %w", err)
	}

	fmt.Fprintf(w, "✓ Updated sinvoice %s → %s\n", current, latestVersion)
	if latest.ReleaseNotes != "" {
		fmt.Fprintf(w, "\nRelease notes:\n%s\n", latest.ReleaseNotes)
	}
	return nil
}

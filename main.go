package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	verbosity   int
	force       bool
	modeFlag    string
	profilesDir string
	noVacuum    bool
)

var rootCmd = &cobra.Command{
	Use:   "anonymize-places [OUTPUT] [PLACES]",
	Short: "Anonymize a copy of a Firefox places.sqlite database",
	Long: `Copies a Firefox places.sqlite to OUTPUT (default ./places_anonymized.sqlite)
and replaces URLs, titles and other browsing text with random strings of the
same length. Counts, frecency and timestamps are kept.

PLACES defaults to the largest places.sqlite among your Firefox profiles.`,
	Args:              cobra.MaximumNArgs(2),
	Version:           versionString(),
	PersistentPreRunE: initLogging,
	RunE:              runAnonymize,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List Firefox profiles with a places database, largest first",
	Args:  cobra.NoArgs,
	RunE:  listProfiles,
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", "", "Firefox profiles directory (default: per-OS location)")

	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite OUTPUT if it already exists")
	rootCmd.Flags().StringVar(&modeFlag, "mode", "", "column selection: places, generic or rules")
	rootCmd.Flags().BoolVar(&noVacuum, "no-vacuum", false, "skip compacting the database after the rewrite")

	rootCmd.AddCommand(profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	setupLogging(os.Stderr, verbosity)
	return nil
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg, args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Infof("config: mode=%s output=%s force=%t vacuum=%t", cfg.Mode, cfg.Output, cfg.Force, cfg.Vacuum)

	profile, err := resolveSource(cfg)
	if err != nil {
		return err
	}
	if profile.Name != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Using profile %q (%s)\n", profile.Name, profile.FriendlySize())
	}
	if err := checkDistinctPaths(profile.PlacesDB, cfg.Output); err != nil {
		return err
	}

	// Hooks and rules are read before anything is written.
	before, err := loadHookScripts(cfg, cfg.Hooks.BeforeRewrite, "before_rewrite")
	if err != nil {
		return err
	}
	after, err := loadHookScripts(cfg, cfg.Hooks.AfterRewrite, "after_rewrite")
	if err != nil {
		return err
	}
	var specs []ColumnSpec
	switch cfg.Mode {
	case ModePlaces:
		specs = placesSpecs()
	case ModeRules:
		if specs, err = cfg.ruleSpecs(); err != nil {
			return err
		}
	}

	if err := prepareOutput(cfg.Output, cfg.Force); err != nil {
		return err
	}
	if err := copyDatabase(ctx, profile.PlacesDB, cfg.Output); err != nil {
		discardOutput(cfg.Output)
		return err
	}

	if cfg.Mode == ModeGeneric {
		schema, err := loadSchema(ctx, cfg.Output)
		if err != nil {
			discardOutput(cfg.Output)
			return fmt.Errorf("introspect schema: %w", err)
		}
		specs = discoverGenericSpecs(schema, cfg.ExcludeTables)
		log.Infof("generic mode: %d column(s) targeted", len(specs))
	}

	res, err := Rewrite(ctx, cfg.Output, specs, RewriteOptions{
		BeforeHooks: before,
		AfterHooks:  after,
		SkipVacuum:  !cfg.Vacuum,
	})
	if err != nil {
		if !IsCommitted(err) {
			// The copy still holds the original history.
			discardOutput(cfg.Output)
		}
		color.Red("Anonymization failed: %s", failureReason(err))
		return err
	}

	color.Green("Done! Wrote %s", cfg.Output)
	fmt.Fprintf(cmd.OutOrStdout(),
		"  %d statement(s), %d row(s) rewritten, %d row(s) deleted, %d distinct value(s) replaced in %s\n",
		res.Statements, res.RowsUpdated, res.RowsDeleted, res.Substitutions, res.Duration.Round(time.Millisecond))
	if res.ForcedAcceptances > 0 {
		color.Yellow("  %d replacement(s) collided with an earlier one", res.ForcedAcceptances)
	}
	return nil
}

// failureReason names the class of a failed rewrite for the status line.
func failureReason(err error) string {
	switch {
	case IsSchemaMismatch(err):
		return "the database does not have a targeted table or column"
	case IsInvalidSpec(err):
		return "a column rule is invalid"
	case IsStorageFailure(err) && IsCommitted(err):
		return "compaction failed; the anonymized data is committed"
	case IsStorageFailure(err):
		return "the database could not be rewritten; nothing was changed"
	}
	return "unexpected error"
}

// applyFlags layers explicitly set CLI flags and positional arguments over cfg.
func applyFlags(cmd *cobra.Command, cfg *Config, args []string) error {
	flags := cmd.Flags()
	if len(args) > 0 {
		cfg.Output = args[0]
	}
	if len(args) > 1 {
		cfg.Source = args[1]
	}
	if flags.Changed("force") {
		cfg.Force = force
	}
	if flags.Changed("mode") {
		cfg.Mode = Mode(modeFlag)
	}
	if flags.Changed("no-vacuum") {
		cfg.Vacuum = !noVacuum
	}
	if flags.Changed("profiles-dir") {
		cfg.ProfilesDir = profilesDir
	}
	return cfg.validate()
}

func resolveSource(cfg *Config) (Profile, error) {
	if cfg.Source != "" {
		return sourceProfile(cfg.Source)
	}
	root, err := profilesRootFor(cfg.ProfilesDir)
	if err != nil {
		return Profile{}, err
	}
	return defaultProfile(root)
}

func profilesRootFor(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory found: %w", err)
	}
	return profilesRoot(home, runtime.GOOS), nil
}

// checkDistinctPaths refuses to use the source database as the working copy.
func checkDistinctPaths(src, out string) error {
	a, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", src, err)
	}
	b, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", out, err)
	}
	if a == b {
		return fmt.Errorf("output %s is the source database", out)
	}
	if sa, err := os.Stat(a); err == nil {
		if sb, err := os.Stat(b); err == nil && os.SameFile(sa, sb) {
			return fmt.Errorf("output %s is the source database", out)
		}
	}
	return nil
}

func discardOutput(path string) {
	log.Infof("removing incomplete output %s", path)
	if err := removeDatabaseFiles(path); err != nil {
		log.Warnf("%v", err)
	}
}

func listProfiles(cmd *cobra.Command, args []string) error {
	dir := profilesDir
	if dir == "" && configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		dir = cfg.ProfilesDir
	}
	root, err := profilesRootFor(dir)
	if err != nil {
		return err
	}
	profiles, err := findProfiles(root)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return fmt.Errorf("no profiles found in %s", root)
	}
	return writeProfilesTable(cmd.OutOrStdout(), profiles)
}

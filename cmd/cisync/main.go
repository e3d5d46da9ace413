package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/nnsdao/cisync/internal/candid"
	"github.com/nnsdao/cisync/internal/config"
	"github.com/nnsdao/cisync/internal/registry"
	"github.com/nnsdao/cisync/internal/synclist"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	rootDir   string
	dryRun    bool

	// newQuerier is replaced in tests
	newQuerier = func(host string) (candid.Querier, error) {
		return candid.NewAgentQuerier(host)
	}
)

const envPrefix = "CISYNC"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree and resets the global flags
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cisync",
		Short: "CI helpers for dfx canister projects",
		Long: `cisync keeps generated canister files in sync during CI.

candid fetches the Candid interface of every deployed canister listed in
canister_ids.json and stores it under src/<name>/<name>.did.

sync-list appends file-sync rules for the locally built canister artifacts
to .github/sync.yml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnv(cmd)
		},
	}

	candidCmd := &cobra.Command{
		Use:   "candid",
		Short: "Fetch deployed canister interfaces into the source tree",
		Long: `Candid reads the canister registry and, for every canister deployed on the
production network, queries its interface description anonymously and writes
it to <output-dir>/<name>/<name>.did.

Interfaces are only written when the project root contains a file matching the
layout pattern (a Cargo workspace by default). A missing output directory is
logged and skipped. The command fails if any interface could not be fetched,
after every canister has been processed.`,
		RunE: runCandid,
	}

	syncListCmd := &cobra.Command{
		Use:   "sync-list",
		Short: "Append sync rules for built canister artifacts",
		Long: `Sync-list scans the dfx build output for canister artifacts and appends one
copy rule per file to the sync configuration. The existing content is kept
as is and rules are not deduplicated.

The result is parsed as YAML before it is written and the run fails if it
does not parse, for example when the file ends in a mapping rather than a
list. Pass --verify=false to append the rules as plain text regardless.`,
		RunE: runSyncList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cisync %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <root>/"+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	// Candid command flags
	candidCmd.Flags().String("registry", config.DefaultRegistry, "canister registry file")
	candidCmd.Flags().String("host", config.DefaultHost, "IC API boundary node")
	candidCmd.Flags().String("network", config.DefaultNetwork, "registry network holding the production ids")
	candidCmd.Flags().String("output-dir", config.DefaultOutputDir, "directory holding one folder per canister")
	candidCmd.Flags().Int("concurrency", 0, "maximum parallel queries (0 = unbounded)")
	candidCmd.Flags().Duration("timeout", 0, "per-query timeout (0 = transport default)")

	// Sync list command flags
	syncListCmd.Flags().String("file", config.DefaultSyncFile, "sync configuration file")
	syncListCmd.Flags().String("artifacts-dir", config.DefaultArtifactsDir, "dfx build output directory")
	syncListCmd.Flags().String("dest-prefix", config.DefaultDestPrefix, "destination directory replacing the build output")
	syncListCmd.Flags().StringSlice("extensions", config.DefaultExtensions, "artifact extensions")
	syncListCmd.Flags().Bool("verify", true, "check that the result is valid YAML before writing")

	// Add commands
	rootCmd.AddCommand(candidCmd)
	rootCmd.AddCommand(syncListCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// bindEnv lets CISYNC_<FLAG> set any flag that was not given explicitly.
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		if err := v.BindEnv(f.Name); err != nil {
			bindErr = err
			return
		}
		if !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
			bindErr = fmt.Errorf("invalid %s_%s: %w", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err)
		}
	})
	return bindErr
}

func runCandid(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger, cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fsys, err := projectFS()
	if err != nil {
		return err
	}

	reg, err := registry.Load(fsys, cfg.Candid.Registry)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	logger.Debug("registry loaded", "path", cfg.Candid.Registry, "canisters", reg.Names())

	querier, err := newQuerier(cfg.Candid.Host)
	if err != nil {
		return err
	}

	s := candid.NewSynchronizer(fsys, querier, logger, candid.Options{
		Network:       cfg.Candid.Network,
		OutputDir:     cfg.Candid.OutputDir,
		LayoutPattern: cfg.Candid.LayoutPattern,
		Concurrency:   cfg.Candid.Concurrency,
		Timeout:       cfg.Candid.Timeout,
		DryRun:        dryRun,
	})

	if _, err := s.Run(ctx, reg); err != nil {
		logger.Error("candid sync failed", "error", err)
		return err
	}

	return nil
}

func runSyncList(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger, cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fsys, err := projectFS()
	if err != nil {
		return err
	}

	g := synclist.NewGenerator(fsys, logger, synclist.Options{
		File:         cfg.SyncList.File,
		ArtifactsDir: cfg.SyncList.ArtifactsDir,
		Extensions:   cfg.SyncList.Extensions,
		DestPrefix:   cfg.SyncList.DestPrefix,
		Verify:       cfg.VerifySyncList(),
		DryRun:       dryRun,
	})

	if _, err := g.Run(); err != nil {
		logger.Error("sync list generation failed", "error", err)
		return err
	}

	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig reads the config file and applies explicitly set flags (or
// their environment variables) on top of it.
func loadConfig(logger *slog.Logger, cmd *cobra.Command) (*config.Config, error) {
	fallback := filepath.Join(rootDir, config.DefaultPath)
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
	}

	cfg, err := config.LoadOrDefault(cfgFile, fallback)
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cfg, cmd.Flags()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"registry", cfg.Candid.Registry,
		"host", cfg.Candid.Host,
		"network", cfg.Candid.Network,
		"sync_file", cfg.SyncList.File,
		"artifacts_dir", cfg.SyncList.ArtifactsDir)

	return cfg, nil
}

// applyFlags overrides config values with flags that were set.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "registry":
			cfg.Candid.Registry = f.Value.String()
		case "host":
			cfg.Candid.Host = f.Value.String()
		case "network":
			cfg.Candid.Network = f.Value.String()
		case "output-dir":
			cfg.Candid.OutputDir = f.Value.String()
		case "concurrency":
			cfg.Candid.Concurrency, err = flags.GetInt(f.Name)
		case "timeout":
			cfg.Candid.Timeout, err = flags.GetDuration(f.Name)
		case "file":
			cfg.SyncList.File = f.Value.String()
		case "artifacts-dir":
			cfg.SyncList.ArtifactsDir = f.Value.String()
		case "dest-prefix":
			cfg.SyncList.DestPrefix = f.Value.String()
		case "extensions":
			cfg.SyncList.Extensions, err = flags.GetStringSlice(f.Name)
		case "verify":
			var verify bool
			verify, err = flags.GetBool(f.Name)
			cfg.SyncList.Verify = &verify
		}
	})
	return err
}

// projectFS returns the filesystem rooted at the project directory
func projectFS() (billy.Filesystem, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", abs)
	}
	return osfs.New(abs), nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

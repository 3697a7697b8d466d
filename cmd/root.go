package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/cache"
	"github.com/bnema/gcal-analyzer/internal/calendar"
	"github.com/bnema/gcal-analyzer/internal/config"
	"github.com/bnema/gcal-analyzer/internal/logger"
)

var (
	cacheDir          string
	verbose           bool
	clientSecretsPath string
	cfgDir            string
	cfg               *config.Config

	// Version information
	version    string
	commitHash string
	buildTime  string
)

var rootCmd = &cobra.Command{
	Use:   "gcal-analyzer [flags] <calendar-id>",
	Short: "Measure the time spent in meetings from a Google Calendar",
	Long: `gcal-analyzer fetches the events of one Google Calendar over a date range,
drops the noise and reports how many hours went into meetings.

Events are skipped when their title recurs more often than the recurrence
threshold, when the title is listed in the skip titles file, or when every
attendee belongs to the internal domain. Titles listed in the include titles
file are always counted.

Examples:
  gcal-analyzer primary
  gcal-analyzer --from 2024-01-01 --to 2024-04-01 --domain example.com me@example.com
  gcal-analyzer --format table --offline me@example.com
  gcal-analyzer --ics export.ics --format json primary`,
	Args:          cobra.ExactArgs(1),
	RunE:          runAnalyze,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, commit, buildTimeStr string) {
	version = v
	commitHash = commit
	buildTime = buildTimeStr

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commitHash, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache directory (default: ~/.cache/gcal-analyzer)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory holding config.toml (default: ~/.config/gcal-analyzer)")
	rootCmd.PersistentFlags().StringVar(&clientSecretsPath, "client-secrets", "", "path to the OAuth client secrets JSON file (default from config: credentials.json)")

	registerAnalyzeFlags(rootCmd)

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(calendarsCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() {
	logger.Init(verbose)

	if cacheDir == "" {
		defaultCacheDir, err := cache.GetDefaultCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting default cache directory: %v\n", err)
			os.Exit(1)
		}
		cacheDir = defaultCacheDir
	}

	var err error
	cfg, err = config.Load(cfgDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

func secretsPath() string {
	if clientSecretsPath != "" {
		return clientSecretsPath
	}
	return cfg.Auth.ClientSecrets
}

func newAuthManager() (*calendar.AuthManager, error) {
	opts := &calendar.AuthOptions{
		ClientSecretsPath: secretsPath(),
		Flow:              cfg.Auth.Flow,
		RedirectPort:      cfg.Auth.RedirectPort,
		Out:               os.Stderr,
	}
	authManager, err := calendar.NewAuthManager(cacheDir, opts, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth manager: %w", err)
	}
	return authManager, nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/cache"
	"github.com/bnema/gcal-analyzer/internal/config"
	"github.com/bnema/gcal-analyzer/internal/nerdfonts"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check authentication, configuration and snapshot state",
	Long: `Display the current state of gcal-analyzer including:
- Authentication status and token expiry
- Effective configuration and rule files
- The cached event snapshot used by --offline

This command helps you check that an analysis run has what it needs.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Authentication ===")

	authManager, err := newAuthManager()
	if err != nil {
		fmt.Printf("%s Authentication: Failed to initialize (%v)\n", nerdfonts.ExclamationTriangle, err)
	} else {
		defer authManager.Close()
		if authManager.HasValidToken() {
			fmt.Printf("%s Authentication: Valid\n", nerdfonts.CheckCircle)
		} else {
			fmt.Printf("%s Authentication: Required (run 'gcal-analyzer auth')\n", nerdfonts.ExclamationCircle)
		}
		fmt.Printf("Token file: %s\n", authManager.TokenPath())
		if expiry, ok := authManager.TokenExpiry(); ok && !expiry.IsZero() {
			fmt.Printf("%s Token expiry: %s\n", nerdfonts.Timer, expiry.Local().Format("2006-01-02 15:04:05"))
		}
	}
	if _, err := os.Stat(secretsPath()); err != nil {
		fmt.Printf("%s Client secrets: %s not found\n", nerdfonts.ExclamationTriangle, secretsPath())
	} else {
		fmt.Printf("Client secrets: %s\n", secretsPath())
	}
	fmt.Printf("Flow: %s\n", cfg.Auth.Flow)

	fmt.Println("\n=== Configuration ===")

	dir := cfgDir
	if dir == "" {
		if defaultDir, err := config.GetDefaultConfigDir(); err == nil {
			dir = defaultDir
		}
	}
	fmt.Printf("Config file: %s\n", filepath.Join(dir, "config.toml"))
	if window, err := cfg.AnalysisWindow(); err == nil {
		fmt.Printf("%s Window: %s\n", nerdfonts.Calendar, window)
	}
	fmt.Printf("Recurrence threshold: %d\n", cfg.Rules.RecurrenceThreshold)
	if cfg.Rules.InternalDomain != "" {
		fmt.Printf("Internal domain: %s\n", cfg.Rules.InternalDomain)
	} else {
		fmt.Println("Internal domain: (none, internal-meeting rule disabled)")
	}
	printRuleFile("Skip titles", cfg.Rules.SkipTitlesFile)
	printRuleFile("Include titles", cfg.Rules.IncludeTitlesFile)

	fmt.Println("\n=== Snapshot ===")

	snapshots := cache.New(cacheDir)
	fmt.Printf("Cache directory: %s\n", snapshots.GetCacheDir())
	fmt.Printf("Cache file: %s\n", snapshots.GetFilePath())

	snapshot, err := snapshots.Info()
	if errors.Is(err, cache.ErrNoSnapshot) {
		fmt.Printf("%s No snapshot yet\n", nerdfonts.InfoCircle)
		return nil
	}
	if err != nil {
		fmt.Printf("%s Failed to load snapshot: %v\n", nerdfonts.ExclamationTriangle, err)
		return nil
	}

	fmt.Printf("Calendar: %s\n", snapshot.CalendarID)
	fmt.Printf("Window: %s\n", snapshot.Window())
	fmt.Printf("Events: %d\n", len(snapshot.Events))
	fmt.Printf("Fetched: %s (%s ago)\n",
		snapshot.FetchedAt.Local().Format("2006-01-02 15:04:05"),
		time.Since(snapshot.FetchedAt).Truncate(time.Second))

	return nil
}

func printRuleFile(label, path string) {
	if path == "" {
		fmt.Printf("%s file: (none)\n", label)
		return
	}
	titles, err := analysis.LoadTitles(path, cfg.Rules.KeepBlankTitles)
	if err != nil {
		fmt.Printf("%s %s file: %v\n", nerdfonts.ExclamationTriangle, label, err)
		return
	}
	fmt.Printf("%s file: %s (%d titles)\n", label, path, len(titles))
}

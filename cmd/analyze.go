package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/analysis"
	"github.com/bnema/gcal-analyzer/internal/cache"
	"github.com/bnema/gcal-analyzer/internal/calendar"
	"github.com/bnema/gcal-analyzer/internal/ics"
	"github.com/bnema/gcal-analyzer/internal/logger"
	"github.com/bnema/gcal-analyzer/internal/report"
	"github.com/bnema/gcal-analyzer/internal/security"
)

const (
	sourceAPI   = "api"
	sourceCache = "cache"
	sourceICS   = "ics"
)

var (
	fromFlag        string
	toFlag          string
	formatFlag      string
	thresholdFlag   int
	domainFlag      string
	skipFileFlag    string
	includeFileFlag string
	icsFlag         string
	offlineFlag     bool
)

func registerAnalyzeFlags(c *cobra.Command) {
	c.Flags().StringVar(&fromFlag, "from", "", "window start, inclusive (RFC 3339 or YYYY-MM-DD)")
	c.Flags().StringVar(&toFlag, "to", "", "window end, exclusive (RFC 3339 or YYYY-MM-DD)")
	c.Flags().StringVarP(&formatFlag, "format", "f", "", "output format: text, table, json or yaml")
	c.Flags().IntVar(&thresholdFlag, "threshold", 0, "skip titles occurring more often than this")
	c.Flags().StringVar(&domainFlag, "domain", "", "internal email domain, e.g. example.com")
	c.Flags().StringVar(&skipFileFlag, "skip-file", "", "file of titles that are never counted")
	c.Flags().StringVar(&includeFileFlag, "include-file", "", "file of titles that are always counted")
	c.Flags().StringVar(&icsFlag, "ics", "", "read events from an iCalendar file instead of the API")
	c.Flags().BoolVar(&offlineFlag, "offline", false, "reuse the last fetched snapshot instead of the API")

	c.MarkFlagsMutuallyExclusive("ics", "offline")
}

// applyAnalyzeFlags copies the flags the user actually set over the config.
func applyAnalyzeFlags(c *cobra.Command) error {
	flags := c.Flags()
	if flags.Changed("from") {
		cfg.Window.Start = fromFlag
	}
	if flags.Changed("to") {
		cfg.Window.End = toFlag
	}
	if flags.Changed("format") {
		cfg.Output.Format = formatFlag
	}
	if flags.Changed("threshold") {
		cfg.Rules.RecurrenceThreshold = thresholdFlag
	}
	if flags.Changed("domain") {
		cfg.Rules.InternalDomain = domainFlag
	}
	if flags.Changed("skip-file") {
		cfg.Rules.SkipTitlesFile = skipFileFlag
	}
	if flags.Changed("include-file") {
		cfg.Rules.IncludeTitlesFile = includeFileFlag
	}
	return cfg.Validate()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	calendarID := args[0]

	if err := applyAnalyzeFlags(cmd); err != nil {
		return err
	}

	window, err := cfg.AnalysisWindow()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	// Rule files are read before any network call so a typo fails fast.
	rules, err := analysis.LoadRuleSet(cfg.RuleOptions())
	if err != nil {
		return err
	}
	logger.Debug("rules loaded",
		"threshold", rules.RecurrenceThreshold,
		"internal_domain", rules.InternalDomain,
		"skip_titles", rules.SkipTitleCount(),
		"include_titles", rules.IncludeTitleCount(),
	)

	events, sourceName, err := fetchEvents(ctx, calendarID, window)
	if err != nil {
		return err
	}

	result, err := analysis.Analyze(events, rules)
	if err != nil {
		return fmt.Errorf("failed to analyze events: %w", err)
	}

	logger.Info("analysis complete",
		"calendar_id", calendarID,
		"source", sourceName,
		"events", len(events),
		"included", len(result.Included),
		"total_minutes", result.TotalMinutes,
	)

	r := report.New(result, report.Params{
		CalendarID: calendarID,
		Source:     sourceName,
		Window:     window,
		Rules:      rules,
	})

	return report.Write(cmd.OutOrStdout(), r, report.Options{
		Format:        format,
		MaxTitleWidth: report.TitleWidth(os.Stdout, cfg.Output.MaxTitleWidth),
		Color:         report.IsTerminal(os.Stdout),
	})
}

// fetchEvents reads the window from the selected source. Events fetched
// from the API are stored as the snapshot for later --offline runs.
func fetchEvents(ctx context.Context, calendarID string, window analysis.Window) ([]analysis.Event, string, error) {
	switch {
	case icsFlag != "":
		events, err := ics.Source{Path: icsFlag}.FetchEvents(ctx, calendarID, window)
		if err != nil {
			return nil, sourceICS, fmt.Errorf("failed to read calendar file: %w", err)
		}
		return events, sourceICS, nil

	case offlineFlag:
		events, err := cache.New(cacheDir).FetchEvents(ctx, calendarID, window)
		if errors.Is(err, cache.ErrNoSnapshot) {
			return nil, sourceCache, fmt.Errorf("no snapshot for %s over %s, run once without --offline: %w", calendarID, window, err)
		}
		if err != nil {
			return nil, sourceCache, err
		}
		return events, sourceCache, nil
	}

	authManager, err := newAuthManager()
	if err != nil {
		return nil, sourceAPI, err
	}
	defer func() {
		if closeErr := authManager.Close(); closeErr != nil {
			logger.Warn("failed to close auth manager", "error", closeErr)
		}
	}()

	client, err := calendar.NewClient(ctx, authManager)
	if err != nil {
		if security.IsAuthError(err) {
			return nil, sourceAPI, fmt.Errorf("authentication failed, run 'gcal-analyzer auth --revoke' then 'gcal-analyzer auth': %w", err)
		}
		return nil, sourceAPI, fmt.Errorf("failed to initialize calendar client: %w", err)
	}

	events, err := client.FetchEvents(ctx, calendarID, window)
	if err != nil {
		return nil, sourceAPI, err
	}

	if err := cache.New(cacheDir).Save(calendarID, window, events); err != nil {
		logger.Warn("failed to save snapshot", "error", err)
	}
	return events, sourceAPI, nil
}

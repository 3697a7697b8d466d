package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/config"
)

const exportICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//gcal-analyzer//test//EN
BEGIN:VEVENT
UID:review
SUMMARY:Design review
DTSTART:20240410T090000Z
DTEND:20240410T100000Z
ATTENDEE:mailto:me@corp.example
ATTENDEE:mailto:client@partner.example
END:VEVENT
BEGIN:VEVENT
UID:lunch
SUMMARY:Team lunch
DTSTART:20240411T120000Z
DTEND:20240411T130000Z
ATTENDEE:mailto:me@corp.example
ATTENDEE:mailto:you@corp.example
END:VEVENT
END:VCALENDAR
`

func TestRootCommandAnalyzesICSFile(t *testing.T) {
	tmp := t.TempDir()
	icsPath := filepath.Join(tmp, "export.ics")
	if err := os.WriteFile(icsPath, []byte(strings.ReplaceAll(exportICS, "\n", "\r\n")), 0644); err != nil {
		t.Fatalf("Failed to write ics: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(tmp, "config"),
		"--cache-dir", filepath.Join(tmp, "cache"),
		"--ics", icsPath,
		"--from", "2024-04-01",
		"--to", "2024-07-01",
		"--domain", "corp.example",
		"--skip-file", "",
		"--include-file", "",
		"--format", "json",
		"primary",
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var got struct {
		Source       string  `json:"source"`
		CalendarID   string  `json:"calendar_id"`
		TotalMinutes float64 `json:"total_minutes"`
		Skipped      struct {
			Internal []string `json:"internal"`
		} `json:"skipped"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out.String())
	}

	if got.Source != sourceICS || got.CalendarID != "primary" {
		t.Errorf("unexpected source %q / calendar %q", got.Source, got.CalendarID)
	}
	if got.TotalMinutes != 60 {
		t.Errorf("expected 60 minutes, got %v", got.TotalMinutes)
	}
	if len(got.Skipped.Internal) != 1 || got.Skipped.Internal[0] != "Team lunch" {
		t.Errorf("expected Team lunch to be internal, got %v", got.Skipped.Internal)
	}

	if _, err := os.Stat(filepath.Join(tmp, "config", "config.toml")); err != nil {
		t.Errorf("expected default config to be created: %v", err)
	}
}

func TestApplyAnalyzeFlagsOverridesOnlyChangedFlags(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })
	cfg = config.Default()

	c := &cobra.Command{}
	registerAnalyzeFlags(c)
	if err := c.Flags().Parse([]string{"--threshold", "2", "--domain", "corp.example"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := applyAnalyzeFlags(c); err != nil {
		t.Fatalf("applyAnalyzeFlags failed: %v", err)
	}

	if cfg.Rules.RecurrenceThreshold != 2 || cfg.Rules.InternalDomain != "corp.example" {
		t.Errorf("flags not applied: %+v", cfg.Rules)
	}
	if cfg.Output.Format != "text" || cfg.Rules.SkipTitlesFile != "skip_titles.txt" {
		t.Errorf("unset flags changed config: %+v", cfg)
	}

	c = &cobra.Command{}
	registerAnalyzeFlags(c)
	if err := c.Flags().Parse([]string{"--from", "2024-07-01", "--to", "2024-04-01"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := applyAnalyzeFlags(c); err == nil {
		t.Error("expected error for inverted window")
	}
}

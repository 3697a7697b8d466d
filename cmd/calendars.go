package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/calendar"
	"github.com/bnema/gcal-analyzer/internal/nerdfonts"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List available calendars",
	Long: `List all calendars accessible with your Google account.

The ID column is what gcal-analyzer expects as its calendar argument;
"primary" always selects your own calendar.

Example:
  gcal-analyzer calendars`,
	RunE: runCalendars,
}

func runCalendars(cmd *cobra.Command, args []string) error {
	authManager, err := newAuthManager()
	if err != nil {
		return err
	}
	defer authManager.Close()

	if !authManager.HasValidToken() {
		return fmt.Errorf("authentication required. Run 'gcal-analyzer auth' first")
	}

	client, err := calendar.NewClient(cmd.Context(), authManager)
	if err != nil {
		return fmt.Errorf("failed to initialize calendar client: %w", err)
	}

	calendars, err := client.ListCalendars(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}

	fmt.Println("=== Available Calendars ===")
	for _, cal := range calendars {
		icon := nerdfonts.Calendar
		if cal.Primary {
			icon = nerdfonts.CheckCircle + " " + nerdfonts.Calendar
		}

		fmt.Printf("%s %s\n", icon, cal.Summary)
		fmt.Printf("  ID: %s\n", cal.Id)
		if cal.Description != "" {
			fmt.Printf("  Description: %s\n", cal.Description)
		}
		if cal.TimeZone != "" {
			fmt.Printf("  %s Time zone: %s\n", nerdfonts.Globe, cal.TimeZone)
		}
		fmt.Printf("  Access Role: %s\n", cal.AccessRole)
		if cal.Primary {
			fmt.Printf("  Primary: Yes\n")
		}
		fmt.Println()
	}

	fmt.Printf("Total calendars: %d\n", len(calendars))
	fmt.Println("\nAnalyze one with:")
	fmt.Printf("  gcal-analyzer %s\n", calendar.DefaultCalendarID)

	return nil
}

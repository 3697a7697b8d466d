package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/gcal-analyzer/internal/nerdfonts"
)

var (
	revokeFlag bool
	statusOnly bool
	flowFlag   string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Google Calendar authentication",
	Long: `Authenticate with the Google Calendar API using OAuth 2.0.

Two flows are available. The device flow prints a code to enter on another
device and works over SSH. The browser flow opens the consent page and
receives the answer on a loopback port. Both need a client secrets file
downloaded from the Google Cloud console (credentials.json by default).

Examples:
  gcal-analyzer auth                    # Authenticate with the configured flow
  gcal-analyzer auth --flow browser     # Authenticate in a local browser
  gcal-analyzer auth --status           # Check authentication status
  gcal-analyzer auth --revoke           # Clear local authentication`,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().BoolVar(&revokeFlag, "revoke", false, "clear local authentication")
	authCmd.Flags().BoolVar(&statusOnly, "status", false, "check authentication status only")
	authCmd.Flags().StringVar(&flowFlag, "flow", "", "authentication flow: device or browser (default from config)")

	authCmd.MarkFlagsMutuallyExclusive("revoke", "status")
}

func runAuth(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("flow") {
		cfg.Auth.Flow = flowFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	authManager, err := newAuthManager()
	if err != nil {
		return err
	}
	defer authManager.Close()

	if statusOnly {
		if authManager.HasValidToken() {
			fmt.Printf("%s Authentication: Valid\n", nerdfonts.CheckCircle)
		} else {
			fmt.Printf("%s Authentication: Required\n", nerdfonts.ExclamationCircle)
		}
		return nil
	}

	if revokeFlag {
		fmt.Printf("%s Clearing authentication...\n", nerdfonts.InfoCircle)
		if err := authManager.ClearLocalToken(); err != nil {
			return fmt.Errorf("failed to clear authentication: %w", err)
		}
		fmt.Printf("%s Authentication cleared successfully\n", nerdfonts.CheckCircle)
		return nil
	}

	if authManager.HasValidToken() {
		fmt.Printf("%s Already authenticated with Google Calendar\n", nerdfonts.CheckCircle)
		fmt.Println("Use --revoke to re-authenticate or --status to check status")
		return nil
	}

	fmt.Printf("%s Starting %s authentication...\n", nerdfonts.InfoCircle, cfg.Auth.Flow)
	fmt.Println("Follow the instructions to complete Google Calendar authorization.")
	fmt.Println()

	if _, err := authManager.ObtainValidCredential(cmd.Context()); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if !authManager.HasValidToken() {
		return fmt.Errorf("authentication completed but token is not valid")
	}

	fmt.Printf("%s Authentication successful!\n", nerdfonts.CheckCircle)
	fmt.Println("You can now run 'gcal-analyzer <calendar-id>' to analyze a calendar.")

	return nil
}

package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imgurfetch/internal"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Print the address that grants imgurfetch access to an account",
	Long: `Print the authorization page for the configured client id. Open it in a
browser, approve access, then pass the address the browser lands on to
'imgurfetch callback'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		authURL, err := client.AuthorizationURL()
		if err != nil {
			return err
		}

		say("Open this address in a browser and approve access:\n\n")
		fmt.Println(authURL)
		say("\nThen run: imgurfetch callback '<address the browser was redirected to>'\n")
		return nil
	},
}

var callbackCmd = &cobra.Command{
	Use:   "callback <REDIRECT_URL>",
	Short: "Store the credentials carried by an authorization redirect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		creds, err := client.Context().HandleCallback(args[0])
		if err != nil {
			return err
		}

		say("Signed in as %s\n", accountLabel(creds))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		if err := client.Context().Logout(); err != nil {
			return err
		}
		say("Signed out\n")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Context().Close()

		creds := client.Context().Credentials()
		if !creds.IsAuthenticated() {
			return internal.NewMissingCredentialsError("whoami").
				WithSuggestion("Run 'imgurfetch login' first")
		}

		fmt.Printf("Account:  %s\n", accountLabel(creds))
		if creds.AccountID != "" {
			fmt.Printf("ID:       %s\n", creds.AccountID)
		}
		if expires := creds.ExpiresAt(); !expires.IsZero() {
			fmt.Printf("Expires:  %s (%s)\n", expires.Format("2006-01-02 15:04"), humanize.Time(expires))
		}
		return nil
	},
}

func accountLabel(creds internal.Credentials) string {
	if creds.Username != "" {
		return creds.Username
	}
	if creds.AccountID != "" {
		return "account " + creds.AccountID
	}
	return "an unnamed account"
}

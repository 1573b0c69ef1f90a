package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/go-notes-session/authapi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Signs in against the hosted auth API and stores the session locally.

The password may also be supplied through the NOTES_PASSWORD environment variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("NOTES_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			authSession, err := a.auth.SignInWithPassword(cmd.Context(), email, password)
			if errors.Is(err, authapi.ErrUnauthorized) {
				return fmt.Errorf("invalid email or password")
			}
			if err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}

			if err := a.session.StoreCredential(authSession.Credential()); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			user := authSession.User
			if user == nil {
				if user, err = a.auth.GetUser(cmd.Context(), authSession.AccessToken); err != nil {
					log.Warn().Err(err).Msg("Failed to fetch profile")
				}
			}
			if user != nil {
				if err := a.session.StoreProfile(user.Profile()); err != nil {
					log.Warn().Err(err).Msg("Failed to cache profile")
				}
			}

			claims, err := a.session.Validate()
			if err != nil {
				return fmt.Errorf("stored session is not valid: %w", err)
			}

			out := newPrinter(cmd)
			out.success("Logged in as %s", email)
			out.info("Session expires at %s", claims.ExpiresAt.Format(time.RFC1123))
			return nil
		},
	}

	loginCmd.Flags().StringVar(&email, "email", "", "Account email")
	loginCmd.Flags().StringVar(&password, "password", "", "Account password")
	return loginCmd
}

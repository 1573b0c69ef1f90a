package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-notes-session/session"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in")

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			provenance, _ := a.session.Provenance()
			claims, err := a.session.Validate()
			switch {
			case errors.Is(err, session.ErrExpiredToken):
				return fmt.Errorf("%w: session expired", errNotLoggedIn)
			case errors.Is(err, session.ErrMalformedToken):
				return fmt.Errorf("%w: stored credential was unreadable and has been cleared", errNotLoggedIn)
			case err != nil:
				return errNotLoggedIn
			}

			out := newPrinter(cmd)
			out.success("Logged in via %s", provenance)
			out.info("Subject: %s", claims.Subject)
			if claims.Email != "" {
				out.info("Email: %s", claims.Email)
			}
			if p, ok := a.session.Profile(); ok && p.Name != "" {
				out.info("Name: %s", p.Name)
			}
			out.info("Expires at: %s (in %s)", claims.ExpiresAt.Format(time.RFC1123), time.Until(claims.ExpiresAt).Round(time.Second))
			return nil
		},
	}
}

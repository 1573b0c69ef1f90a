package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			accessToken, remote := a.session.AccessToken()
			a.session.Logout()

			out := newPrinter(cmd)
			if remote {
				if err := a.auth.SignOut(cmd.Context(), accessToken); err != nil {
					log.Debug().Err(err).Msg("Remote sign-out failed")
					out.warning("Local session cleared, but the server could not be notified")
					return nil
				}
			}
			out.success("Logged out successfully")
			return nil
		},
	}
}

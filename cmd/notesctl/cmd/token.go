package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the bearer token of a valid session",
		Long:  `Prints the raw bearer token for use in scripts, e.g. curl -H "Authorization: Bearer $(notesctl token)".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.session.IsAuthorized() {
				return errNotLoggedIn
			}
			bearer, ok := a.session.BearerToken()
			if !ok {
				return errNotLoggedIn
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), bearer)
			return err
		},
	}
}

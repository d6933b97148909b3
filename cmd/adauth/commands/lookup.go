package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netresearch/adbind"
)

func newLookupCommand(root *rootOptions) *cobra.Command {
	var uppercase bool

	cmd := &cobra.Command{
		Use:   "lookup NAME",
		Short: "Resolve a pre-authenticated name against the user store",
		Long: `Look up NAME in the secondary user store as if an upstream single sign-on
front end had already verified it. No directory request is made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := root.setup()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if rt.store == nil {
				return errors.New("no user store configured")
			}

			remapper, err := adbind.NewIdentityRemapper(rt.store, adbind.RequestedName(uppercase), false, adbind.WithLogger(rt.logger))
			if err != nil {
				return err
			}
			identity, err := remapper.LoadPreAuthenticated(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "username: %s\n", identity.Username)
			fmt.Fprintf(out, "enabled:  %t\n", identity.Enabled)
			fmt.Fprintf(out, "roles:    %s\n", strings.Join(identity.Roles.Strings(), " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&uppercase, "uppercase", false, "upper-case NAME before the lookup")
	return cmd
}

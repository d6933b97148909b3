package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/netresearch/adbind/userstore"
)

func newImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a user map file into the database user store",
		Long: `Read accounts in the form "username=password,ROLE_A,ROLE_B,enabled" from FILE
and write them to the configured sqlite or postgres store. Existing accounts
are replaced. Plain passwords are stored as bcrypt hashes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := root.setup()
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			db, ok := rt.store.(*userstore.GormStore)
			if !ok {
				return fmt.Errorf("import requires a sqlite or postgres store")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			accounts, err := userstore.ParseUserMap(f, rt.cfg.Store.BcryptCost)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if err := db.Import(cmd.Context(), accounts); err != nil {
				return err
			}

			rt.logger.Info("accounts imported", slog.Int("count", accounts.Len()), slog.String("type", string(rt.cfg.Store.Type)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts\n", accounts.Len())
			return nil
		},
	}
}

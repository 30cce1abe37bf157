package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the cross-run seen-candidate history",
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired seen-candidate ids from the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("history"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeSeen(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "history prune")
		}
		zap.L().Info("history pruned", zap.Int("deleted", n))
		fmt.Fprintf(os.Stdout, "Deleted %d expired ids.\n", n)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

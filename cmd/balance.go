package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/erc20/erc20"
	"github.com/Mohsinsiddi/erc20/internal/ui"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the token balance of an address",
	Long: `Print the token balance of an address in base units. Addresses the
contract has never seen have a balance of 0. When an endpoint cannot be
reached the next one in the pool is tried.

Examples:
  erc20 balance 0xEB2fE8872A6f1eDb70a2632EA1f869AB131532f6
  ERC20_CONTRACT=0xA0b8... erc20 balance 0x...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withFailover(ctx, func(w *erc20.Wallet) error {
			bal, err := w.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bal.String())
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Meta(fmt.Sprintf("token %s via %s", w.Contract().Hex(), w.Endpoint())))
			return nil
		})
	},
}

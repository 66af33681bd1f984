package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/erc20/internal/config"
	"github.com/Mohsinsiddi/erc20/internal/ui"
	"github.com/Mohsinsiddi/erc20/internal/wallet"
)

var (
	payKey    string
	payTo     string
	payAmount string
	payWait   bool
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Transfer tokens to an address",
	Long: `Sign and broadcast transfer(to, amount) from the account behind --key.

--key accepts:
  0x…            a literal hex private key
  env:NAME       the key held in environment variable NAME
  keyring:NAME   a key saved earlier with "erc20 key import NAME"

The amount is in base units. Without --wait the command returns as soon as
the node accepts the transaction.

Examples:
  erc20 pay --key env:PAYER_KEY --to 0x... --amount 1000000
  erc20 pay --key keyring:hot --to 0x... --amount 5 --wait`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, ok := new(big.Int).SetString(payAmount, 10)
		if !ok {
			return fmt.Errorf("invalid --amount %q: want a base-10 integer", payAmount)
		}

		var ks *wallet.Keystore
		if strings.HasPrefix(payKey, "keyring:") {
			var err error
			if ks, err = openKeystore(); err != nil {
				return err
			}
		}
		privHex, err := wallet.ResolveKey(payKey, ks)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		w, err := newWallet(ctx)
		if err != nil {
			return err
		}

		rcpt, err := w.Pay(ctx, privHex, payTo, amount)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rcpt.Hash.Hex())
		fmt.Fprintln(cmd.ErrOrStderr(), ui.Success(fmt.Sprintf("sent %s to %s (nonce %d)", amount, ui.Addr(rcpt.To.Hex()), rcpt.Nonce)))

		if !payWait {
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
		defer cancel()

		spin := ui.NewSpinner(cmd.ErrOrStderr(), "waiting for "+ui.TruncateAddr(rcpt.Hash.Hex())+" to be mined…")
		spin.Start()
		mined, err := w.WaitMined(waitCtx, rcpt.Hash)
		spin.Stop()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), ui.Success(fmt.Sprintf("mined in block %d, gas used %d", mined.BlockNumber, mined.GasUsed)))
		return nil
	},
}

func init() {
	payCmd.Flags().StringVar(&payKey, "key", "", "private key source: hex, env:NAME or keyring:NAME")
	payCmd.Flags().StringVar(&payTo, "to", "", "recipient address")
	payCmd.Flags().StringVar(&payAmount, "amount", "", "amount in base units")
	payCmd.Flags().BoolVar(&payWait, "wait", false, "wait until the transaction is mined")
	_ = payCmd.MarkFlagRequired("key")
	_ = payCmd.MarkFlagRequired("to")
	_ = payCmd.MarkFlagRequired("amount")
}

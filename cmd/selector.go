package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/erc20/internal/contract"
	"github.com/Mohsinsiddi/erc20/internal/ui"
)

var selectorEvent bool

// knownSignatures are the ERC20 functions and events a selector can be
// looked up against.
var knownSignatures = []string{
	"balanceOf(address)",
	"transfer(address,uint256)",
	"transferFrom(address,address,uint256)",
	"approve(address,uint256)",
	"allowance(address,address)",
	"totalSupply()",
	"decimals()",
	"symbol()",
	"name()",
}

var knownEvents = []string{
	"Transfer(address,address,uint256)",
	"Approval(address,address,uint256)",
}

var selectorCmd = &cobra.Command{
	Use:   "selector <signature-or-selector>",
	Short: "Compute or look up a function selector or event topic",
	Long: `Compute the 4-byte selector of a canonical function signature, or the
32-byte topic of an event signature with --event. A 0x-prefixed argument is
looked up against the ERC20 interface instead; full transfer calldata is
decoded into its recipient and amount.

Examples:
  erc20 selector "transfer(address to, uint256 amount)"   # 0xa9059cbb
  erc20 selector "balanceOf(address)"                     # 0x70a08231
  erc20 selector --event "Transfer(address,address,uint256)"
  erc20 selector 0xa9059cbb                               # transfer(address,uint256)
  erc20 selector 0xa9059cbb000000...                      # decode a transfer call`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{noConfig: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		input := strings.TrimSpace(args[0])

		if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
			if data, err := hexutil.Decode(strings.ToLower(input)); err == nil && len(data) > 4 && len(data) != 32 {
				return describeCalldata(out, data)
			}
			sig, ok := lookupSelector(input)
			if !ok {
				return fmt.Errorf("selector %s is not part of the ERC20 interface", input)
			}
			fmt.Fprintln(out, sig)
			return nil
		}

		sig := normalizeSignature(input)
		if selectorEvent {
			fmt.Fprintln(out, contract.EventTopic(sig).Hex())
		} else {
			fmt.Fprintln(out, contract.SelectorHex(sig))
		}
		fmt.Fprintln(cmd.ErrOrStderr(), ui.Meta(sig))
		return nil
	},
}

// lookupSelector matches a 4-byte selector or 32-byte topic against the
// known ERC20 signatures.
func lookupSelector(hexSel string) (string, bool) {
	hexSel = strings.ToLower(hexSel)
	for _, sig := range knownSignatures {
		if contract.SelectorHex(sig) == hexSel {
			return sig, true
		}
	}
	for _, sig := range knownEvents {
		if strings.ToLower(contract.EventTopic(sig).Hex()) == hexSel {
			return sig, true
		}
	}
	return "", false
}

// describeCalldata prints the function a call targets. transfer calls are
// decoded into recipient and amount.
func describeCalldata(out io.Writer, data []byte) error {
	sel := hexutil.Encode(data[:4])
	sig, ok := lookupSelector(sel)
	if !ok {
		return fmt.Errorf("selector %s is not part of the ERC20 interface", sel)
	}
	fmt.Fprintln(out, sig)
	if [4]byte(data[:4]) != contract.TransferSelector {
		return nil
	}

	to, amount, err := contract.DecodeTransferCall(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "to\t%s\namount\t%s\n", to.Hex(), amount)
	return nil
}

// normalizeSignature removes parameter names, keeping only types.
// "transfer(address to, uint256 amount)" → "transfer(address,uint256)"
func normalizeSignature(sig string) string {
	parenIdx := strings.Index(sig, "(")
	if parenIdx < 0 {
		return sig
	}

	name := strings.TrimSpace(sig[:parenIdx])
	paramStr := strings.TrimSuffix(sig[parenIdx+1:], ")")

	if strings.TrimSpace(paramStr) == "" {
		return name + "()"
	}

	params := strings.Split(paramStr, ",")
	var types []string
	for _, p := range params {
		// Take only the first word (the type), skip the name.
		parts := strings.Fields(p)
		if len(parts) > 0 {
			types = append(types, parts[0])
		}
	}

	return name + "(" + strings.Join(types, ",") + ")"
}

func init() {
	selectorCmd.Flags().BoolVar(&selectorEvent, "event", false, "compute an event topic instead of a function selector")
}

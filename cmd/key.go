package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/erc20/internal/ui"
	"github.com/Mohsinsiddi/erc20/internal/wallet"
)

// keyringPasswordEnv unlocks the file backend without a prompt.
const keyringPasswordEnv = "ERC20_KEYRING_PASSWORD"

var keyCmd = &cobra.Command{
	Use:         "key",
	Short:       "Manage private keys in the OS keychain",
	Annotations: map[string]string{noConfig: ""},
}

var keyImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Store a private key read from stdin",
	Long: `Read a hex private key from stdin and store it in the OS keychain
under <name>. Use it later with: erc20 pay --key keyring:<name>

Example:
  printf '%s' "$PAYER_KEY" | erc20 key import hot`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading key from stdin: %w", err)
		}

		ks, err := openKeystore()
		if err != nil {
			return err
		}
		addr, err := ks.Store(args[0], strings.TrimSpace(line))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("key %q stored for %s", args[0], ui.Addr(addr.Hex()))))
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := openKeystore()
		if err != nil {
			return err
		}
		if err := ks.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("key %q deleted", args[0])))
		return nil
	},
}

// openKeystore opens the OS keychain, falling back to an encrypted file
// store under ERC20_KEYRING_DIR (default ~/.erc20/keys).
func openKeystore() (*wallet.Keystore, error) {
	dir := os.Getenv("ERC20_KEYRING_DIR")
	if cfg != nil && cfg.KeyringDir != "" {
		dir = cfg.KeyringDir
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".erc20", "keys")
	}

	password := keyring.TerminalPrompt
	if pw, ok := os.LookupEnv(keyringPasswordEnv); ok {
		password = keyring.FixedStringPrompt(pw)
	}
	return wallet.DefaultKeystore(dir, password)
}

func init() {
	keyCmd.AddCommand(keyImportCmd, keyDeleteCmd)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/erc20/erc20"
	"github.com/Mohsinsiddi/erc20/internal/ui"
)

var acceptTUI bool

var acceptCmd = &cobra.Command{
	Use:   "accept <address>...",
	Short: "Watch for incoming transfers",
	Long: `Watch the token contract for transfers to any of the given addresses,
starting at the next block. Each transfer is printed once, in block and
log order, as a tab separated line:

  <block> <log-index> <tx-hash> <from> <to> <amount>

Runs until interrupted. With ERC20_METRICS_ADDR set, Prometheus metrics are
served on /metrics while watching.

Keyboard controls (--tui):
  ↑↓ / j k   navigate rows
  q           quit

Examples:
  erc20 accept 0xabc... 0xdef...
  erc20 accept 0xabc... --tui`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := newWallet(ctx)
		if err != nil {
			return err
		}

		if cfg.MetricsAddr != "" {
			defer serveMetrics(cfg.MetricsAddr)()
		}

		if acceptTUI {
			return runAcceptTUI(ctx, w, args)
		}
		return w.Accept(ctx, args, func(t erc20.Transfer) {
			printTransfer(cmd.OutOrStdout(), t)
		})
	},
}

// serveMetrics exposes met on addr. The returned func shuts the server down
// and waits for its error watcher to exit.
func serveMetrics(addr string) (stop func()) {
	errc := make(chan error, 1)
	done := make(chan struct{})
	srv := met.Serve(addr, errc)
	log.Info("serving metrics", zap.String("addr", addr))

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case err := <-errc:
			log.Error("metrics server failed", zap.Error(err))
		case <-done:
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		close(done)
		<-watched
	}
}

func printTransfer(out io.Writer, t erc20.Transfer) {
	fmt.Fprintf(out, "%d\t%d\t%s\t%s\t%s\t%s\n",
		t.Block, t.LogIndex, t.TxHash.Hex(), t.From.Hex(), t.Address.Hex(), t.Amount)
}

func runAcceptTUI(ctx context.Context, w *erc20.Wallet, addresses []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := ui.NewAcceptModel(addresses, w.Contract().Hex(), w.Endpoint())
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))

	done := make(chan error, 1)
	go func() {
		transfers, errc := w.Stream(ctx, addresses)
		done <- feedProgram(prog, transfers, errc)
	}()

	_, runErr := prog.Run()
	cancel()
	watchErr := <-done

	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}
	return errors.Join(watchErr, runErr)
}

// program is the part of *tea.Program the stream feeder drives.
type program interface {
	Send(tea.Msg)
	Quit()
}

// feedProgram forwards transfers to prog until the stream ends. A terminal
// watcher error is shown and quits the program.
func feedProgram(prog program, transfers <-chan erc20.Transfer, errc <-chan error) error {
	for t := range transfers {
		prog.Send(ui.TransferMsg{
			Hash:     t.TxHash.Hex(),
			From:     t.From.Hex(),
			To:       t.Address.Hex(),
			Amount:   t.Amount.String(),
			Block:    t.Block,
			LogIndex: t.LogIndex,
		})
	}
	err := <-errc
	if err != nil {
		prog.Send(ui.StatusMsg{ErrMsg: err.Error()})
		prog.Quit()
	}
	return err
}

func init() {
	acceptCmd.Flags().BoolVar(&acceptTUI, "tui", false, "show transfers in a live terminal view")
}

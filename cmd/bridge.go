package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phorus/pkg/bridge"
	"phorus/pkg/chains"
	"phorus/pkg/history"
	"phorus/pkg/types"
	"phorus/pkg/wallet"
)

var (
	noConfirm     bool
	bridgeTimeout time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge <amount> <token> [on <chain>] to <token> [on <chain>]",
	Short: "Bridge tokens to another chain",
	Long: `Quote, approve and execute a cross-chain transfer with the configured wallet.

The wallet needs PHORUS_PRIVATE_KEY and an RPC endpoint per chain it signs on
(PHORUS_RPC_ARB, PHORUS_RPC_OPT, ...). ERC-20 transfers ask for an approval
bound to the quoted spender and amount before the bridge transaction is sent.

Examples:
  phorus bridge 100 USDC on arb to USDC on opt
  phorus bridge 0.1 ETH on arb to ETH on bas --yes
  phorus bridge 25 USDC on arb to USDC-SPOT on hpl --recipient 0x123...`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	addTransferFlags(bridgeCmd)
	bridgeCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	bridgeCmd.Flags().DurationVar(&bridgeTimeout, "timeout", 30*time.Minute, "Give up waiting after this long")
}

func runBridge(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	intent, err := parseIntent(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	stack, err := newQuoteStack()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer stack.Close()
	if err := stack.cfg.RequireWallet(); err != nil {
		printError(err)
		os.Exit(1)
	}

	catalog := stack.resolver.Catalog()
	source, err := catalog.Chain(intent.FromChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	endpoints, err := stack.cfg.RPCEndpoints(catalog)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	w, err := wallet.NewEVMWallet(stack.cfg.PrivateKey, endpoints, source.ID, wallet.WithPollInterval(stack.cfg.ConfirmationPoll))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()

	store, err := history.NewStorage(stack.cfg.HistoryPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	session := bridge.NewSession(bridge.Dependencies{
		Wallet:   w,
		Relayer:  stack.client,
		Quoter:   stack.service,
		Catalog:  catalog,
		History:  store,
		Metrics:  stack.metrics,
		Debounce: stack.cfg.Debounce,
	})
	defer session.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, bridgeTimeout)
	defer cancelTimeout()

	if err := session.SetIntent(*intent); err != nil {
		printError(err)
		os.Exit(1)
	}

	snapshot := awaitSession(ctx, session, jsonOutput, " Fetching quote...",
		bridge.StateQuoteReady, bridge.StateApprovalRequired, bridge.StateApprovalPending, bridge.StateApprovalConfirmed)
	quote := snapshot.Quote

	if !jsonOutput {
		displayQuote(snapshot.Intent, quote)
		warnOnLowBalance(ctx, w, source, quote)
	}

	if !noConfirm && !jsonOutput {
		if !confirmBridge() {
			session.Reset()
			fmt.Println("\nBridge cancelled.")
			os.Exit(0)
		}
	}

	if snapshot.State == bridge.StateApprovalRequired {
		if err := session.Approve(ctx); err != nil {
			exitWithSnapshot(session.Snapshot(), err, jsonOutput)
		}
		snapshot = awaitSession(ctx, session, jsonOutput, " Waiting for approval confirmation...", bridge.StateApprovalConfirmed)
		if !jsonOutput {
			color.Green("\n✓ Approval confirmed: %s", snapshot.Approval.TxHash)
		}
	}

	if err := session.Execute(ctx); err != nil {
		exitWithSnapshot(session.Snapshot(), err, jsonOutput)
	}
	snapshot = awaitSession(ctx, session, jsonOutput, " Waiting for bridge transaction...", bridge.StateSuccess)

	if jsonOutput {
		output := quoteOutput(snapshot.Intent, quote)
		output["session_id"] = snapshot.ID
		output["tx_hash"] = snapshot.TxHash
		output["relay_id"] = snapshot.RelayID
		output["status"] = snapshot.State
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	color.Green("\n✓ Bridge submitted successfully!")
	if snapshot.TxHash != "" {
		fmt.Printf("  Transaction: %s\n", color.CyanString(snapshot.TxHash))
	}
	if snapshot.RelayID != "" && snapshot.RelayID != snapshot.TxHash {
		fmt.Printf("  Relay ID:    %s\n", color.CyanString(snapshot.RelayID))
	}
	if snapshot.TxHash != "" {
		fmt.Println("\nYou can monitor the transfer on the destination chain using:")
		color.Cyan("  phorus status %s --chain %s\n", snapshot.TxHash, source.Key)
	}
}

// awaitSession blocks until the session reaches one of want or fails, and exits
// the process on failure or timeout.
func awaitSession(ctx context.Context, session *bridge.Session, jsonOutput bool, suffix string, want ...bridge.State) bridge.Snapshot {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = suffix
		s.Start()
	}

	snapshot, err := session.Await(ctx, func(snap bridge.Snapshot) bool {
		if snap.State == bridge.StateFailed {
			return true
		}
		for _, state := range want {
			if snap.State == state {
				return true
			}
		}
		return false
	})
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		exitWithSnapshot(snapshot, fmt.Errorf("stopped waiting while %s: %w", snapshot.State, err), jsonOutput)
	}
	if snapshot.State == bridge.StateFailed {
		exitWithSnapshot(snapshot, snapshot.Err, jsonOutput)
	}
	return snapshot
}

func exitWithSnapshot(snapshot bridge.Snapshot, err error, jsonOutput bool) {
	message := snapshot.Message
	if message == "" && err != nil {
		message = err.Error()
	}
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"session_id": snapshot.ID,
			"status":     snapshot.State,
			"tx_hash":    snapshot.TxHash,
			"error":      message,
		}, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		printError(fmt.Errorf("%s", message))
		if snapshot.TxHash != "" {
			color.Yellow("Last transaction: %s\n", snapshot.TxHash)
		}
	}
	os.Exit(1)
}

func warnOnLowBalance(ctx context.Context, w *wallet.EVMWallet, source chains.Chain, quote *types.Quote) {
	token := quote.Action.FromToken.Address
	if source.IsNativeAddress(token) {
		token = ""
	}
	balance, err := w.Balance(ctx, source.ID, token)
	if err != nil {
		color.Yellow("Could not check %s balance: %v\n", quote.Action.FromToken.Symbol, err)
		return
	}
	need, ok := new(big.Int).SetString(quote.Action.FromAmount, 10)
	if ok && balance.Cmp(need) < 0 {
		color.Yellow("Wallet holds %s %s, the transfer needs %s\n",
			types.FormatBaseUnits(balance.String(), quote.Action.FromToken.Decimals),
			quote.Action.FromToken.Symbol, quote.FromAmountFormatted())
	}
}

func confirmBridge() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with bridge? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

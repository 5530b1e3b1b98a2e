package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phorus/config"
	"phorus/pkg/approval"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/parser"
	"phorus/pkg/types"
)

var (
	fromChain     string
	toChain       string
	senderAddr    string
	recipientAddr string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> [on <chain>] to <token> [on <chain>]",
	Short: "Get a bridge quote without sending anything",
	Long: `Find a route for a cross-chain transfer and show what it would cost.

The sender defaults to the configured wallet; pass --from to quote for
another address.

Examples:
  phorus quote 100 USDC on arb to USDC on opt
  phorus quote 0.5 ETH on eth to ETH on bas --from 0x123...
  phorus quote 25 USDC on arb to USDC-SPOT on hpl`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	addTransferFlags(quoteCmd)
	quoteCmd.Flags().StringVar(&senderAddr, "from", "", "Sender address (defaults to the configured wallet)")
}

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain key when the command names none (e.g. arb)")
	cmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain key when the command names none (e.g. opt)")
	cmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (defaults to the sender)")
}

func parseIntent(args []string) (*types.TransferIntent, error) {
	intent, err := parser.ParseTransferCommand(strings.Join(args, " "), fromChain, toChain)
	if err != nil {
		return nil, err
	}
	if recipientAddr != "" {
		intent.ToAddress = recipientAddr
	}
	return intent, nil
}

func runQuote(cmd *cobra.Command, args []string) {
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

	intent.FromAddress = senderAddr
	if intent.FromAddress == "" {
		intent.FromAddress, err = walletAddress(stack.cfg)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	quote, err := stack.service.FetchQuote(ctx, *intent)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(fmt.Errorf("%s", bridgeerrors.UserMessage(err)))
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(quoteOutput(intent, quote), "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayQuote(intent, quote)
}

func walletAddress(cfg *config.Config) (string, error) {
	if cfg.PrivateKey == "" {
		return "", fmt.Errorf("no sender: pass --from or configure PHORUS_PRIVATE_KEY")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func feeText(quote *types.Quote) string {
	if fee, ok := quote.FeeUSD(); ok {
		return "$" + fee
	}
	return "unknown"
}

func quoteOutput(intent *types.TransferIntent, quote *types.Quote) map[string]interface{} {
	return map[string]interface{}{
		"quote_id":       quote.ID,
		"route_id":       quote.RouteID,
		"strategy":       quote.Strategy,
		"tool":           quote.Tool,
		"steps":          quote.StepCount,
		"from_chain":     intent.FromChain,
		"to_chain":       intent.ToChain,
		"from_amount":    quote.FromAmountFormatted(),
		"from_token":     quote.Action.FromToken.Symbol,
		"to_amount":      quote.ToAmountFormatted(),
		"to_token":       quote.Action.ToToken.Symbol,
		"fee_usd":        feeText(quote),
		"needs_approval": approval.NeedsApproval(quote),
		"approval_to":    quote.Estimate.ApprovalAddress,
		"execution":      quote.Payload.Kind(),
		"duration_sec":   quote.Estimate.ExecutionDuration,
	}
}

func displayQuote(intent *types.TransferIntent, quote *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     BRIDGE QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s on %s\n", quote.FromAmountFormatted(), color.YellowString(quote.Action.FromToken.Symbol), intent.FromChain)
	fmt.Printf("  To:                ~%s %s on %s\n", quote.ToAmountFormatted(), color.YellowString(quote.Action.ToToken.Symbol), intent.ToChain)
	fmt.Printf("  Route:             %s (%s", color.CyanString(quote.Tool), quote.Strategy)
	if quote.StepCount > 1 {
		fmt.Printf(", %d steps", quote.StepCount)
	}
	fmt.Println(")")
	fmt.Printf("  Fees:              %s\n", feeText(quote))
	if quote.Estimate.ExecutionDuration > 0 {
		fmt.Printf("  Estimated Time:    %.0f seconds\n", quote.Estimate.ExecutionDuration)
	}
	if approval.NeedsApproval(quote) {
		fmt.Printf("  Approval:          %s\n", color.YellowString("required for %s", quote.Estimate.ApprovalAddress))
	}
	if quote.IsMessaging() {
		fmt.Printf("  Execution:         %s\n", "signed message, relayed by the provider")
	}
	if intent.ToAddress != "" {
		fmt.Printf("  Recipient:         %s\n", color.CyanString(intent.ToAddress))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

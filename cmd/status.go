package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phorus/pkg/client"
	"phorus/pkg/types"
)

var (
	statusChain   string
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a bridge transfer",
	Long: `Check the provider-side status of a cross-chain transfer by its source
transaction hash.

Examples:
  phorus status 0x1234...abcd --chain arb
  phorus status 0x1234...abcd --chain arb --watch
  phorus status 0x1234...abcd --chain arb --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusChain, "chain", "", "Source chain key of the transaction")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the transfer settles")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	stack, err := newQuoteStack()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer stack.Close()

	var fromChainID uint64
	if statusChain != "" {
		chain, err := stack.resolver.Catalog().Chain(statusChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		fromChainID = chain.ID
	}

	if watchStatus {
		watchTransferStatus(stack.client, txHash, fromChainID, jsonOutput)
	} else {
		checkTransferStatus(stack.client, txHash, fromChainID, jsonOutput)
	}
}

func checkTransferStatus(apiClient *client.LifiClient, txHash string, fromChainID uint64, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transfer status..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status, err := apiClient.GetStatus(ctx, txHash, fromChainID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(status)
	}
}

func watchTransferStatus(apiClient *client.LifiClient, txHash string, fromChainID uint64, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transfer status (Tx: %s)\n", color.CyanString(txHash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(apiClient, txHash, fromChainID) {
		return
	}

	for range ticker.C {
		if checkAndDisplayStatus(apiClient, txHash, fromChainID) {
			return
		}
	}
}

// checkAndDisplayStatus reports whether the transfer reached a final status.
func checkAndDisplayStatus(apiClient *client.LifiClient, txHash string, fromChainID uint64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := apiClient.GetStatus(ctx, txHash, fromChainID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status)
	return status.IsTerminal()
}

func displayStatus(status *types.TransferStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       TRANSFER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Source Tx:       %s\n", color.CyanString(status.TxHash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status.Status))
	if status.Substatus != "" {
		fmt.Printf("  Detail:          %s\n", status.Substatus)
	}
	if status.SubstatusMessage != "" {
		fmt.Printf("                   %s\n", color.HiBlackString(status.SubstatusMessage))
	}
	if status.Tool != "" {
		fmt.Printf("  Bridge:          %s\n", status.Tool)
	}
	if status.FromChainID != 0 || status.ToChainID != 0 {
		fmt.Printf("  Chains:          %d -> %d\n", status.FromChainID, status.ToChainID)
	}
	if status.ReceivingTxHash != "" {
		fmt.Printf("  Receiving Tx:    %s\n", color.HiBlackString(status.ReceivingTxHash))
	}
	if status.ReceivedAmount != "" {
		fmt.Printf("  Amount Out:      %s\n", status.ReceivedAmount)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "DONE", "SUCCESS":
		return color.GreenString(status)
	case "PENDING", "NOT_FOUND", "APPROVING", "SUBMITTED", "APPROVAL_PENDING":
		return color.YellowString(status)
	case "FAILED", "INVALID":
		return color.RedString(status)
	default:
		return status
	}
}

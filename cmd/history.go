package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phorus/config"
	"phorus/pkg/history"
)

var (
	historyStatusFilter string
	historyWatch        bool
	historyInterval     time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past bridge sessions",
	Long: `List the bridge sessions recorded by 'phorus bridge'.

Every session keeps its approval hash, bridge transaction hash or relay id and
final status. Dismissed transfers are no longer tracked to success.

Examples:
  phorus history
  phorus history --status failed
  phorus history view <session-id>
  phorus history dismiss <tx-hash>
  phorus history sync --watch`,
	Run: runHistoryList,
}

var historyViewCmd = &cobra.Command{
	Use:   "view <session-id|tx-hash>",
	Short: "Show one recorded session",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryView,
}

var historyDismissCmd = &cobra.Command{
	Use:   "dismiss <tx-hash|relay-id>",
	Short: "Stop tracking a submitted transfer",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryDismiss,
}

var historySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update recorded transfers with their destination-chain status",
	Run:   runHistorySync,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyViewCmd)
	historyCmd.AddCommand(historyDismissCmd)
	historyCmd.AddCommand(historySyncCmd)

	historyCmd.Flags().StringVar(&historyStatusFilter, "status", "", "Filter by status (approving, submitted, success, failed)")
	historySyncCmd.Flags().BoolVarP(&historyWatch, "watch", "w", false, "Keep polling until every transfer settles")
	historySyncCmd.Flags().DurationVar(&historyInterval, "interval", history.DefaultVerifyInterval, "Polling interval (when watching)")
}

func openHistory() *history.Storage {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	store, err := history.NewStorage(cfg.HistoryPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return store
}

func runHistoryList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	store := openHistory()

	var records []*history.Record
	if historyStatusFilter != "" {
		records = store.ListByStatus(history.Status(historyStatusFilter))
	} else {
		records = store.List()
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(output))
		return
	}

	if len(records) == 0 {
		color.Yellow("No bridge sessions found.\n")
		fmt.Println("\nStart one with:")
		color.Cyan("  phorus bridge <amount> <token> on <chain> to <token> on <chain>\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 120))
	color.Green("                                              BRIDGE HISTORY")
	fmt.Println(strings.Repeat("=", 120))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nUPDATED\tTRANSFER\tROUTE\tREFERENCE\tSTATUS")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for _, r := range records {
		transfer := fmt.Sprintf("%s %s %s -> %s %s", r.Intent.Amount, r.Intent.FromToken, r.Intent.FromChain, r.Intent.ToToken, r.Intent.ToChain)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Updated.Format("2006-01-02 15:04"), transfer, r.Tool, truncateString(r.Reference(), 24), getRecordStatusColor(r))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 120) + "\n")
}

func runHistoryView(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	store := openHistory()

	record, err := store.Get(args[0])
	if err != nil {
		record, err = store.FindByReference(args[0])
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        BRIDGE SESSION")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Session:         %s\n", record.ID)
	fmt.Printf("  Status:          %s\n", getRecordStatusColor(record))
	fmt.Printf("  Transfer:        %s %s on %s -> %s on %s\n",
		record.Intent.Amount, record.Intent.FromToken, record.Intent.FromChain, record.Intent.ToToken, record.Intent.ToChain)
	if record.Tool != "" {
		fmt.Printf("  Route:           %s\n", record.Tool)
	}
	if record.ToAmount != "" {
		fmt.Printf("  Quoted Out:      %s (base units)\n", record.ToAmount)
	}
	if record.ApprovalTxHash != "" {
		fmt.Printf("  Approval Tx:     %s\n", color.HiBlackString(record.ApprovalTxHash))
	}
	if record.TxHash != "" {
		fmt.Printf("  Bridge Tx:       %s\n", color.CyanString(record.TxHash))
	}
	if record.RelayID != "" {
		fmt.Printf("  Relay ID:        %s\n", color.CyanString(record.RelayID))
	}
	if record.Error != "" {
		fmt.Printf("  Error:           %s\n", color.RedString(record.Error))
	}
	fmt.Printf("  Created:         %s\n", record.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:         %s\n", record.Updated.Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runHistoryDismiss(cmd *cobra.Command, args []string) {
	store := openHistory()
	if err := store.Dismiss(args[0]); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Dismissed %s", args[0]))
}

func runHistorySync(cmd *cobra.Command, args []string) {
	stack, err := newQuoteStack()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer stack.Close()
	store, err := history.NewStorage(stack.cfg.HistoryPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	verifier := history.NewVerifier(store, stack.client)
	verifier.SetInterval(historyInterval)

	pending := verifier.Pending()
	if len(pending) == 0 {
		color.Yellow("No transfers awaiting their destination chain.\n")
		return
	}
	fmt.Printf("\nChecking %d transfer(s)...\n", len(pending))

	report := func(r *history.Record) {
		fmt.Printf("  %s  %s  %s\n", truncateString(r.TxHash, 24), getRecordStatusColor(r), r.ProviderStatus)
	}

	if !historyWatch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		for _, r := range verifier.VerifyPending(ctx) {
			report(r)
		}
		fmt.Println()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := verifier.Run(ctx, report); err != nil && !errors.Is(err, context.Canceled) {
		printError(err)
		os.Exit(1)
	}
	printSuccess("All transfers settled.")
}

func getRecordStatusColor(r *history.Record) string {
	status := string(r.Status)
	if r.Dismissed {
		return color.HiBlackString(status + " (dismissed)")
	}
	switch r.Status {
	case history.StatusSuccess:
		return color.GreenString(status)
	case history.StatusSubmitted:
		return color.CyanString(status)
	case history.StatusApproving:
		return color.YellowString(status)
	case history.StatusFailed:
		return color.RedString(status)
	default:
		return status
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

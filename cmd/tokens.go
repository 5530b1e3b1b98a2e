package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phorus/pkg/chains"
	"phorus/pkg/types"
)

var (
	filterChain  string
	filterSymbol string
	remoteTokens bool
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List supported chains and tokens",
	Long: `List the chains and tokens phorus knows about.

By default the built-in catalog is shown. With --remote the routing provider's
token list is fetched for the selected chain.

Examples:
  phorus tokens
  phorus tokens --chain hpl
  phorus tokens --chain arb --remote --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain key")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&remoteTokens, "remote", false, "Fetch the provider's token list (requires --chain)")
}

type chainTokens struct {
	Chain  string        `json:"chain"`
	ID     uint64        `json:"chain_id"`
	Name   string        `json:"name"`
	Tokens []types.Token `json:"tokens"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	stack, err := newQuoteStack()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer stack.Close()
	catalog := stack.resolver.Catalog()

	var selected []chains.Chain
	if filterChain != "" {
		chain, err := catalog.Chain(filterChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		selected = []chains.Chain{chain}
	} else {
		selected = catalog.Chains()
	}

	var listing []chainTokens
	if remoteTokens {
		if filterChain == "" {
			printError(fmt.Errorf("--remote requires --chain"))
			os.Exit(1)
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		if !jsonOutput {
			s.Suffix = " Fetching supported tokens..."
			s.Start()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tokens, err := stack.client.Tokens(ctx, selected[0].ID)
		if !jsonOutput {
			s.Stop()
		}
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		listing = append(listing, chainTokens{Chain: selected[0].Key, ID: selected[0].ID, Name: selected[0].Name, Tokens: tokens})
	} else {
		for _, chain := range selected {
			listing = append(listing, chainTokens{Chain: chain.Key, ID: chain.ID, Name: chain.Name, Tokens: catalogTokens(chain)})
		}
	}

	// Apply filters
	if filterSymbol != "" {
		for i := range listing {
			var temp []types.Token
			for _, token := range listing[i].Tokens {
				if strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
					temp = append(temp, token)
				}
			}
			listing[i].Tokens = temp
		}
	}

	// Output
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(listing, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(listing)
	}
}

func catalogTokens(chain chains.Chain) []types.Token {
	tokens := []types.Token{chain.Native()}
	for _, token := range chain.Tokens {
		tokens = append(tokens, token)
	}
	rest := tokens[1:]
	sort.Slice(rest, func(i, j int) bool { return rest[i].Symbol < rest[j].Symbol })
	return tokens
}

func displayTokens(listing []chainTokens) {
	total := 0
	for _, entry := range listing {
		total += len(entry.Tokens)
	}
	if total == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	for _, entry := range listing {
		if len(entry.Tokens) == 0 {
			continue
		}
		color.Cyan("\n%s  %s (chain %d)", strings.ToUpper(entry.Chain), entry.Name, entry.ID)
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range entry.Tokens {
			fmt.Printf("  %-12s  %2d decimals  %s\n",
				color.YellowString(token.Symbol),
				token.Decimals,
				color.HiBlackString(token.Address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", total, len(listing))
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"phorus/config"
	"phorus/pkg/chains"
	"phorus/pkg/client"
	"phorus/pkg/metrics"
	"phorus/pkg/route"
)

var rootCmd = &cobra.Command{
	Use:   "phorus",
	Short: "A CLI for cross-chain bridging over LI.FI-compatible routing APIs",
	Long: `phorus is a command-line bridge client. Describe the transfer you want and
phorus finds a route, handles the ERC-20 approval, sends the bridge transaction
(or signs and relays the provider's message) and tracks it until it settles.

Examples:
  phorus quote 100 USDC on arb to USDC on opt
  phorus bridge 25 USDC on arb to USDC-SPOT on hpl
  phorus tokens --chain hpl
  phorus status 0x1234...abcd --chain arb
  phorus history`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	} else if cfg, err := config.Load(); err == nil && cfg.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
		if err != nil {
			return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
		}
		level = parsed
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	return nil
}

// quoteStack wires the provider client, the token resolver and the route service.
type quoteStack struct {
	cfg      *config.Config
	client   *client.LifiClient
	resolver *chains.Resolver
	service  *route.Service
	metrics  *metrics.BridgeMetrics
	provider *sdkmetric.MeterProvider
}

func newQuoteStack() (*quoteStack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var provider *sdkmetric.MeterProvider
	if cfg.OtelCollectorURL != "" {
		provider, err = metrics.InitMetricProvider(context.Background(), cfg.OtelCollectorURL)
		if err != nil {
			return nil, err
		}
	}

	m, err := metrics.NewGlobalBridgeMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	apiClient := client.NewLifiClient(cfg.APIURL, cfg.APIKey, cfg.Integrator)
	resolver := chains.NewResolver(chains.DefaultCatalog(), apiClient, cfg.RegistryTTL)
	return &quoteStack{
		cfg:      cfg,
		client:   apiClient,
		resolver: resolver,
		service: route.NewService(apiClient, resolver,
			route.WithSlippage(cfg.Slippage),
			route.WithExecutionType(cfg.ExecutionType),
			route.WithMetrics(m),
		),
		metrics:  m,
		provider: provider,
	}, nil
}

// Close flushes pending metric exports.
func (s *quoteStack) Close() {
	if s.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.provider.Shutdown(ctx); err != nil {
		log.Error().Msgf("Error shutting down meter provider: %v", err)
	}
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

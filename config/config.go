package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"phorus/pkg/chains"
)

// Config holds the application configuration
type Config struct {
	APIURL           string            `mapstructure:"api_url" default:"https://li.quest/v1"`
	APIKey           string            `mapstructure:"api_key"`
	Integrator       string            `mapstructure:"integrator" default:"phorus"`
	Slippage         float64           `mapstructure:"slippage" default:"0.005"`
	Debounce         time.Duration     `mapstructure:"debounce" default:"500ms"`
	PrivateKey       string            `mapstructure:"private_key"`
	RPC              map[string]string `mapstructure:"rpc"`
	HistoryPath      string            `mapstructure:"history_path"`
	LogLevel         string            `mapstructure:"log_level" default:"info"`
	ConfirmationPoll time.Duration     `mapstructure:"confirmation_poll" default:"3s"`
	RegistryTTL      time.Duration     `mapstructure:"registry_ttl" default:"5m"`
	ExecutionType    string            `mapstructure:"execution_type" default:"all"`
	OtelCollectorURL string            `mapstructure:"otel_collector_url"`
}

var keys = []string{
	"api_url",
	"api_key",
	"integrator",
	"slippage",
	"debounce",
	"private_key",
	"history_path",
	"log_level",
	"confirmation_poll",
	"registry_ttl",
	"execution_type",
	"otel_collector_url",
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigName(".phorus")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFrom(v)
}

// LoadFrom decodes the configuration held by v. Environment variables with
// the PHORUS_ prefix override file values; rpc.<chain> maps to PHORUS_RPC_<CHAIN>.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PHORUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	for _, chain := range chains.DefaultCatalog().Chains() {
		_ = v.BindEnv("rpc." + chain.Key)
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that decoding cannot.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url must not be empty")
	}
	if c.Slippage <= 0 || c.Slippage >= 1 {
		return fmt.Errorf("slippage must be between 0 and 1, got %v", c.Slippage)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	switch c.ExecutionType {
	case "all", "transaction", "message":
	default:
		return fmt.Errorf("execution_type must be all, transaction or message, got %q", c.ExecutionType)
	}
	return nil
}

// RequireWallet reports whether a signing wallet can be built from the configuration.
func (c *Config) RequireWallet() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set PHORUS_PRIVATE_KEY environment variable or add private_key to .phorus.yaml")
	}
	if len(c.RPC) == 0 {
		return fmt.Errorf("no RPC endpoints configured. Please set PHORUS_RPC_<CHAIN> (e.g. PHORUS_RPC_ARB) or add an rpc section to .phorus.yaml")
	}
	return nil
}

// RPCEndpoints maps configured RPC URLs from chain keys to chain ids.
func (c *Config) RPCEndpoints(catalog *chains.Catalog) (map[uint64]string, error) {
	endpoints := make(map[uint64]string, len(c.RPC))
	for key, url := range c.RPC {
		if url == "" {
			continue
		}
		chain, err := catalog.Chain(key)
		if err != nil {
			return nil, fmt.Errorf("rpc.%s: %w", key, err)
		}
		endpoints[chain.ID] = url
	}
	return endpoints, nil
}

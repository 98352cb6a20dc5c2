package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MarkoPoloResearchLab/travelbook/internal/catalog"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	envPrefix = "TRAVELBOOK"

	flagRPCURL           = "rpc-url"
	flagPrivateKey       = "private-key"
	flagTokenAddress     = "token-address"
	flagAgencyAddress    = "agency-address"
	flagCatalogURL       = "catalog-url"
	flagCatalogTimeout   = "catalog-timeout"
	flagDatabaseURL      = "database-url"
	flagRedisAddr        = "redis-addr"
	flagRedisPassword    = "redis-password"
	flagRedisDB          = "redis-db"
	flagFinalityTimeout  = "finality-timeout"
	flagPollInterval     = "poll-interval"
	flagGracePeriod      = "grace-period"
	flagQueryConcurrency = "query-concurrency"

	defaultDatabaseURL     = "sqlite:///tmp/travelbook.db"
	defaultFinalityTimeout = 2 * time.Minute
	defaultPollInterval    = 2 * time.Second
	defaultCatalogTimeout  = 10 * time.Second
)

type runtimeConfig struct {
	RPCURL           string
	PrivateKey       string
	TokenAddress     string
	AgencyAddress    string
	CatalogURL       string
	CatalogTimeout   time.Duration
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	FinalityTimeout  time.Duration
	PollInterval     time.Duration
	GracePeriod      time.Duration
	QueryConcurrency int
}

func registerRuntimeFlags(flags *pflag.FlagSet) {
	flags.String(flagRPCURL, "", "EVM JSON-RPC endpoint")
	flags.String(flagPrivateKey, "", "hex private key of the booking account")
	flags.String(flagTokenAddress, "", "TravelToken contract address override")
	flags.String(flagAgencyAddress, "", "TravelAgency contract address override")
	flags.String(flagCatalogURL, catalog.DefaultBaseURL, "travel offer catalog base URL")
	flags.Duration(flagCatalogTimeout, defaultCatalogTimeout, "catalog request timeout")
	flags.String(flagDatabaseURL, defaultDatabaseURL, "attempt journal database (sqlite:// or postgres://)")
	flags.String(flagRedisAddr, "", "Redis address for the cross-process attempt guard (optional)")
	flags.String(flagRedisPassword, "", "Redis password")
	flags.Int(flagRedisDB, 0, "Redis database index")
	flags.Duration(flagFinalityTimeout, defaultFinalityTimeout, "how long to wait for a call to be mined")
	flags.Duration(flagPollInterval, defaultPollInterval, "receipt polling interval")
	flags.Duration(flagGracePeriod, booking.DefaultGracePeriod, "delay before returning to the listing after a completed reservation")
	flags.Int(flagQueryConcurrency, booking.DefaultQueryConcurrency, "parallel reservation detail reads")
}

var runtimeFlagNames = []string{
	flagRPCURL,
	flagPrivateKey,
	flagTokenAddress,
	flagAgencyAddress,
	flagCatalogURL,
	flagCatalogTimeout,
	flagDatabaseURL,
	flagRedisAddr,
	flagRedisPassword,
	flagRedisDB,
	flagFinalityTimeout,
	flagPollInterval,
	flagGracePeriod,
	flagQueryConcurrency,
}

// newViper loads .env when present and binds TRAVELBOOK_* variables.
func newViper() *viper.Viper {
	_ = godotenv.Load()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, names []string) error {
	for _, name := range names {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %s", name)
		}
		if err := v.BindPFlag(name, flag); err != nil {
			return err
		}
	}
	return nil
}

func loadRuntimeConfig(v *viper.Viper, cmd *cobra.Command) (runtimeConfig, error) {
	if err := bindFlags(v, cmd, runtimeFlagNames); err != nil {
		return runtimeConfig{}, err
	}
	cfg := runtimeConfig{
		RPCURL:           strings.TrimSpace(v.GetString(flagRPCURL)),
		PrivateKey:       strings.TrimSpace(v.GetString(flagPrivateKey)),
		TokenAddress:     strings.TrimSpace(v.GetString(flagTokenAddress)),
		AgencyAddress:    strings.TrimSpace(v.GetString(flagAgencyAddress)),
		CatalogURL:       strings.TrimSpace(v.GetString(flagCatalogURL)),
		CatalogTimeout:   v.GetDuration(flagCatalogTimeout),
		DatabaseURL:      strings.TrimSpace(v.GetString(flagDatabaseURL)),
		RedisAddr:        strings.TrimSpace(v.GetString(flagRedisAddr)),
		RedisPassword:    v.GetString(flagRedisPassword),
		RedisDB:          v.GetInt(flagRedisDB),
		FinalityTimeout:  v.GetDuration(flagFinalityTimeout),
		PollInterval:     v.GetDuration(flagPollInterval),
		GracePeriod:      v.GetDuration(flagGracePeriod),
		QueryConcurrency: v.GetInt(flagQueryConcurrency),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.FinalityTimeout <= 0 {
		return runtimeConfig{}, fmt.Errorf("%s must be positive", flagFinalityTimeout)
	}
	if cfg.PollInterval <= 0 {
		return runtimeConfig{}, fmt.Errorf("%s must be positive", flagPollInterval)
	}
	if cfg.GracePeriod < 0 {
		return runtimeConfig{}, fmt.Errorf("%s must not be negative", flagGracePeriod)
	}
	if cfg.QueryConcurrency <= 0 {
		return runtimeConfig{}, fmt.Errorf("%s must be positive", flagQueryConcurrency)
	}
	return cfg, nil
}

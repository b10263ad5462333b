package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

type Config struct {
	Telegram TelegramConfig
	Signer   SignerConfig
	Domain   DomainConfig
	Asset    AssetConfig
	Store    StoreConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Limits   LimitsConfig
	Server   ServerConfig
	Chain    ChainConfig
	Log      LogConfig
}

type TelegramConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
	Username  string `mapstructure:"username"`
}

type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	KeyFile    string `mapstructure:"key_file"`
}

type DomainConfig struct {
	Name              string `mapstructure:"name"`
	Version           string `mapstructure:"version"`
	ChainID           int64  `mapstructure:"chain_id"`
	VerifyingContract string `mapstructure:"verifying_contract"`
}

type AssetConfig struct {
	Decimals int32 `mapstructure:"decimals"`
}

type StoreConfig struct {
	Backend      string `mapstructure:"backend"`
	BadgerPath   string `mapstructure:"badger_path"`
	MySQLDSN     string `mapstructure:"mysql_dsn"`
	MySQLMigrate bool   `mapstructure:"mysql_migrate"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type IdentityConfig struct {
	RequireProof bool `mapstructure:"require_proof"`
}

type LimitsConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"`
	APIToken string `mapstructure:"api_token"`
}

type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendMySQL  = "mysql"
)

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.token_file", "./bot_token.txt")
	v.SetDefault("signer.key_file", "./secret")
	v.SetDefault("domain.name", "TelegramBotVault")
	v.SetDefault("domain.version", "1")
	v.SetDefault("domain.chain_id", 1001)
	v.SetDefault("asset.decimals", 18)
	v.SetDefault("store.backend", BackendBadger)
	v.SetDefault("store.badger_path", "./data")
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("limits.per_minute", 20)
	v.SetDefault("limits.burst", 5)
	v.SetDefault("server.port", 8080)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"telegram.enabled":          "TELEGRAM_ENABLED",
		"telegram.token":            "TELEGRAM_BOT_TOKEN",
		"telegram.token_file":       "TELEGRAM_BOT_TOKEN_FILE",
		"telegram.username":         "TELEGRAM_BOT_USERNAME",
		"signer.private_key":        "SIGNING_KEY",
		"signer.key_file":           "SIGNING_KEY_FILE",
		"domain.name":               "DOMAIN_NAME",
		"domain.version":            "DOMAIN_VERSION",
		"domain.chain_id":           "CHAIN_ID",
		"domain.verifying_contract": "VAULT_CONTRACT",
		"asset.decimals":            "ASSET_DECIMALS",
		"store.backend":             "STORE_BACKEND",
		"store.badger_path":         "BADGER_PATH",
		"store.mysql_dsn":           "MYSQL_DSN",
		"store.mysql_migrate":       "MYSQL_MIGRATE",
		"redis.addr":                "REDIS_ADDR",
		"redis.password":            "REDIS_PASSWORD",
		"redis.db":                  "REDIS_DB",
		"redis.key_prefix":          "REDIS_KEY_PREFIX",
		"identity.require_proof":    "REQUIRE_OWNERSHIP_PROOF",
		"limits.per_minute":         "RATE_PER_MINUTE",
		"limits.burst":              "RATE_BURST",
		"server.port":               "PORT",
		"server.grpc_port":          "GRPC_PORT",
		"server.api_token":          "API_TOKEN",
		"chain.rpc_url":             "RPC_URL",
		"log.development":           "LOG_DEVELOPMENT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Domain.VerifyingContract == "" {
		return fmt.Errorf("required config missing: VAULT_CONTRACT")
	}
	if _, err := identity.ParseAddress(c.Domain.VerifyingContract); err != nil {
		return fmt.Errorf("VAULT_CONTRACT %q: %w", c.Domain.VerifyingContract, err)
	}
	if c.Domain.ChainID <= 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	if c.Domain.Name == "" || c.Domain.Version == "" {
		return fmt.Errorf("DOMAIN_NAME and DOMAIN_VERSION must be non-empty")
	}
	if c.Asset.Decimals < 0 || c.Asset.Decimals > 77 {
		return fmt.Errorf("ASSET_DECIMALS out of range: %d", c.Asset.Decimals)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendBadger:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("required config missing: REDIS_ADDR")
		}
	case BackendMySQL:
		if c.Store.MySQLDSN == "" {
			return fmt.Errorf("required config missing: MYSQL_DSN")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	// The command gateway only exists when both the HTTP port and the token are set.
	if !c.Telegram.Enabled && (c.Server.APIToken == "" || c.Server.Port == 0) {
		return fmt.Errorf("no transport enabled: set TELEGRAM_ENABLED, or API_TOKEN with a non-zero PORT")
	}
	if c.Identity.RequireProof && c.Telegram.Username == "" {
		return fmt.Errorf("REQUIRE_OWNERSHIP_PROOF needs TELEGRAM_BOT_USERNAME")
	}
	if c.Limits.PerMinute < 0 || c.Limits.Burst < 0 {
		return fmt.Errorf("rate limits must be non-negative")
	}
	return nil
}

// ChainID returns the domain chain id as a big.Int.
func (c *Config) ChainID() *big.Int { return big.NewInt(c.Domain.ChainID) }

// VaultAddress returns the verifying contract address.
func (c *Config) VaultAddress() common.Address {
	return common.HexToAddress(c.Domain.VerifyingContract)
}

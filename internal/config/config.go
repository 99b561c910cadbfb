// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/types"
	"github.com/rovshanmuradov/tokenmill/internal/utils/logger"
)

const envPrefix = "TOKENMILL"

type Config struct {
	Log             logger.Config   `mapstructure:"log"`
	ProgramID       string          `mapstructure:"program_id"`
	Storage         StorageConfig   `mapstructure:"storage"`
	RedisAddr       string          `mapstructure:"redis_addr"`
	ClickHouseDSN   string          `mapstructure:"clickhouse_dsn"`
	Protocol        ProtocolConfig  `mapstructure:"protocol"`
	Migration       MigrationConfig `mapstructure:"migration"`
	ReflectionScale uint64          `mapstructure:"reflection_scale"`
	MetricsAddr     string          `mapstructure:"metrics_addr"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // memory | postgres
	PostgresURL string `mapstructure:"postgres_url"`
}

type ProtocolConfig struct {
	Authority            string   `mapstructure:"authority"`
	FeeRecipient         string   `mapstructure:"fee_recipient"`
	ProtocolFeeShare     uint16   `mapstructure:"protocol_fee_share"`
	ReferralFeeShare     uint16   `mapstructure:"referral_fee_share"`
	CreatorFeeShare      uint16   `mapstructure:"creator_fee_share"`
	CpiWhitelist         []string `mapstructure:"cpi_whitelist"`
	MaxForwardedAccounts uint8    `mapstructure:"max_forwarded_accounts"`
}

type MigrationConfig struct {
	ThresholdLamports    uint64 `mapstructure:"threshold_lamports"`
	CreatorBonusLamports uint64 `mapstructure:"creator_bonus_lamports"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	DefaultProgramID            = "TMi11ZV8pVQkP2N4kX5jhmFWd8ohMqLsQ3GGyEkbPwk"
	DefaultProtocolFeeShare     = 500
	DefaultReferralFeeShare     = 1000
	DefaultCreatorFeeShare      = 100
	DefaultMaxForwardedAccounts = 16
)

func defaults(v *viper.Viper) {
	lc := logger.DefaultConfig()
	for key, value := range map[string]interface{}{
		"log.file":                         lc.LogFile,
		"log.max_size":                     lc.MaxSize,
		"log.max_age":                      lc.MaxAge,
		"log.max_backups":                  lc.MaxBackups,
		"log.compress":                     lc.Compress,
		"log.development":                  lc.Development,
		"log.console":                      lc.Console,
		"program_id":                       DefaultProgramID,
		"storage.driver":                   DriverMemory,
		"protocol.protocol_fee_share":      DefaultProtocolFeeShare,
		"protocol.referral_fee_share":      DefaultReferralFeeShare,
		"protocol.creator_fee_share":       DefaultCreatorFeeShare,
		"protocol.max_forwarded_accounts":  DefaultMaxForwardedAccounts,
		"migration.threshold_lamports":     migration.DefaultThreshold,
		"migration.creator_bonus_lamports": migration.DefaultCreatorBonus,
		"reflection_scale":                 reflection.DefaultScale,
	} {
		v.SetDefault(key, value)
	}
}

// LoadConfig читает файл конфигурации (json/yaml/toml по расширению),
// применяет переменные окружения TOKENMILL_* и проверяет результат.
// Файл .env в рабочей директории загружается, если он есть.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// AutomaticEnv не видит список через Unmarshal
	if raw := v.GetString("protocol.cpi_whitelist"); raw != "" && len(cfg.Protocol.CpiWhitelist) == 0 {
		cfg.Protocol.CpiWhitelist = splitList(raw)
	}

	return &cfg, cfg.Validate()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(part); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id: %w", err)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := validateURL(c.Storage.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid storage.postgres_url: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.ClickHouseDSN != "" {
		if err := validateURL(c.ClickHouseDSN, "clickhouse"); err != nil {
			return fmt.Errorf("invalid clickhouse_dsn: %w", err)
		}
	}
	if c.ReflectionScale == 0 {
		return errors.New("invalid reflection_scale")
	}
	if c.Migration.ThresholdLamports == 0 {
		return errors.New("invalid migration.threshold_lamports")
	}
	return c.Protocol.validate()
}

func (p *ProtocolConfig) validate() error {
	for name, bp := range map[string]uint16{
		"protocol_fee_share": p.ProtocolFeeShare,
		"referral_fee_share": p.ReferralFeeShare,
		"creator_fee_share":  p.CreatorFeeShare,
	} {
		if bp > 10_000 {
			return fmt.Errorf("protocol.%s %d exceeds 10000 bp", name, bp)
		}
	}
	for _, key := range append([]string{p.Authority, p.FeeRecipient}, p.CpiWhitelist...) {
		if key == "" {
			continue
		}
		if _, err := solana.PublicKeyFromBase58(key); err != nil {
			return fmt.Errorf("invalid public key %q: %w", key, err)
		}
	}
	return nil
}

func validateURL(rawURL, scheme string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("expected %s:// URL", scheme)
	}
	return nil
}

// ProgramKey returns the parsed program id. Call after Validate.
func (c *Config) ProgramKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

// MigrationParams converts the migration section.
func (c *Config) MigrationParams() migration.Params {
	return migration.Params{
		Threshold:    c.Migration.ThresholdLamports,
		CreatorBonus: c.Migration.CreatorBonusLamports,
	}
}

// ProtocolRecord builds the protocol config record. Empty authority or
// recipient fall back to the given defaults.
func (p *ProtocolConfig) ProtocolRecord(authority, recipient solana.PublicKey) *types.ProtocolConfig {
	rec := &types.ProtocolConfig{
		Authority:               authority,
		ProtocolFeeRecipient:    recipient,
		DefaultProtocolFeeShare: p.ProtocolFeeShare,
		ReferralFeeShare:        p.ReferralFeeShare,
		MaxForwardedAccounts:    p.MaxForwardedAccounts,
	}
	if p.Authority != "" {
		rec.Authority = solana.MustPublicKeyFromBase58(p.Authority)
	}
	if p.FeeRecipient != "" {
		rec.ProtocolFeeRecipient = solana.MustPublicKeyFromBase58(p.FeeRecipient)
	}
	for _, key := range p.CpiWhitelist {
		rec.CpiWhitelist = append(rec.CpiWhitelist, solana.MustPublicKeyFromBase58(key))
	}
	return rec
}

package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ChainScopeTenant is the only supported audit chain scope: one hash chain
// per tenant, rooted at that tenant's first event. The policy is part of
// the persisted data's meaning and cannot be changed once deployed, so any
// other value fails validation instead of being silently accepted.
const ChainScopeTenant = "tenant"

type Config struct {
	Port            string `mapstructure:"PORT"`
	Env             string `mapstructure:"ENV"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32  `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer      string `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL     string `mapstructure:"AUTH_JWKS_URL"`
	JWTSigningKey   string `mapstructure:"JWT_SIGNING_KEY"`
	AuditChainScope string `mapstructure:"AUDIT_CHAIN_SCOPE"`
	RetentionYears  int    `mapstructure:"RETENTION_DEFAULT_YEARS"`
	BodyLimit       string `mapstructure:"BODY_LIMIT"`
	DevTenantID     string `mapstructure:"DEV_TENANT_ID"`
	DevActorID      string `mapstructure:"DEV_ACTOR_ID"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUDIT_CHAIN_SCOPE", ChainScopeTenant)
	v.SetDefault("RETENTION_DEFAULT_YEARS", 7)
	v.SetDefault("BODY_LIMIT", "1M")

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "JWT_SIGNING_KEY",
		"AUDIT_CHAIN_SCOPE", "RETENTION_DEFAULT_YEARS", "BODY_LIMIT",
		"DEV_TENANT_ID", "DEV_ACTOR_ID",
	} {
		v.BindEnv(key)
	}

	// .env is optional; environment variables win either way.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.AuditChainScope != ChainScopeTenant {
		return fmt.Errorf(
			"AUDIT_CHAIN_SCOPE must be %q; the chain scope is a fixed invariant of the stored data and %q is not supported",
			ChainScopeTenant, c.AuditChainScope)
	}

	if c.RetentionYears < 1 {
		return fmt.Errorf("RETENTION_DEFAULT_YEARS must be at least 1, got %d", c.RetentionYears)
	}

	if !c.IsDev() {
		if c.AuthIssuer == "" && c.JWTSigningKey == "" {
			return fmt.Errorf(
				"AUTH_ISSUER (with AUTH_JWKS_URL) or JWT_SIGNING_KEY must be set when ENV=%q; refusing to start without authentication", c.Env)
		}
	}

	return nil
}

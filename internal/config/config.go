package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Identity IdentityConfig `yaml:"identity"`
	Registry RegistryConfig `yaml:"registry"`
	Claims   ClaimsConfig   `yaml:"claims"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// IdentityConfig represents identity directory configuration
type IdentityConfig struct {
	Region          string `yaml:"region"`
	UserPoolID      string `yaml:"user_pool_id"`
	IdentityPoolID  string `yaml:"identity_pool_id"`
	Issuer          string `yaml:"issuer"`
	JWKSURL         string `yaml:"jwks_url"`
	TenantClaim     string `yaml:"tenant_claim"`
	TenantAttribute string `yaml:"tenant_attribute"`
}

// RegistryConfig represents device registry configuration
type RegistryConfig struct {
	Region    string `yaml:"region"`
	AccountID string `yaml:"account_id"`
}

// ClaimsConfig represents provisioning claim configuration
type ClaimsConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		if c.Identity.Region == "" {
			c.Identity.Region = region
		}
		if c.Registry.Region == "" {
			c.Registry.Region = region
		}
	}

	if userPoolID := os.Getenv("USER_POOL_ID"); userPoolID != "" {
		c.Identity.UserPoolID = userPoolID
	}

	if identityPoolID := os.Getenv("IDENTITY_POOL_ID"); identityPoolID != "" {
		c.Identity.IdentityPoolID = identityPoolID
	}

	if accountID := os.Getenv("ACCOUNT_ID"); accountID != "" {
		c.Registry.AccountID = accountID
	}

	if claimSecret := os.Getenv("CLAIM_SECRET"); claimSecret != "" {
		c.Claims.Secret = claimSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// setDefaults fills values the file may omit
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "iotfleet-tenant-server"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.Identity.TenantClaim == "" {
		c.Identity.TenantClaim = "custom:tenantId"
	}
	if c.Identity.TenantAttribute == "" {
		c.Identity.TenantAttribute = c.Identity.TenantClaim
	}
	if c.Identity.Issuer == "" && c.Identity.Region != "" && c.Identity.UserPoolID != "" {
		c.Identity.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s",
			c.Identity.Region, c.Identity.UserPoolID)
	}
	if c.Identity.JWKSURL == "" && c.Identity.Issuer != "" {
		c.Identity.JWKSURL = c.Identity.Issuer + "/.well-known/jwks.json"
	}

	if c.Claims.TTL == 0 {
		c.Claims.TTL = 15 * time.Minute
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate rejects configurations the server cannot start with
func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Identity.Region == "" || c.Identity.UserPoolID == "" {
		return fmt.Errorf("identity.region and identity.user_pool_id are required")
	}
	if c.Registry.Region == "" {
		return fmt.Errorf("registry.region is required")
	}
	if c.Claims.Secret == "" {
		return fmt.Errorf("claims.secret is required")
	}
	return nil
}

package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CAMPUS_ prefix, optionally from a .env file), flags,
// or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL; empty keeps all state in memory" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL prepended to relative meal image paths" flag:"image-base-url"`
	Cart         CartConfig
	Catalog      CatalogConfig
	Identity     IdentityConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CartConfig controls cart removal and direct-order delivery pricing.
type CartConfig struct {
	RemovePolicy          string `default:"line" usage:"Remove behaviour: line (whole line) or decrement (one unit)" flag:"cart-remove-policy"`
	FreeDeliveryThreshold int64  `default:"50000" usage:"Cart total from which direct delivery is free"`
	FlatDeliveryFee       int64  `default:"5000" usage:"Direct delivery fee below the threshold"`
}

// CatalogConfig controls where meals come from.
type CatalogConfig struct {
	File             string `default:"" usage:"Meal feed (JSON) loaded at startup in memory mode or upserted in PostgreSQL mode" flag:"catalog-file"`
	CurrencyExponent int32  `default:"0" usage:"Minor-unit digits of feed prices (0 for UGX, 2 for USD)"`
}

// IdentityConfig controls the simulated identity provider.
type IdentityConfig struct {
	Delay  time.Duration `default:"500ms" usage:"Artificial latency of login and signup"`
	Pepper string        `default:"campus-eats" usage:"HMAC pepper deriving identity ids from emails"`
}

// SessionConfig controls in-process session caching.
type SessionConfig struct {
	IdleTimeout   time.Duration `default:"30m" usage:"Drop cached sessions idle for this long"`
	PruneInterval time.Duration `default:"5m" usage:"How often idle sessions are pruned"`
	SecureCookie  bool          `default:"false" usage:"Mark the device cookie Secure" flag:"secure-cookie"`
}

// RateLimitConfig controls the per-device token bucket limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Burst size per device or client IP"`
	Window time.Duration `default:"1m"  usage:"Time to refill a drained bucket"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (device cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a .env file when present, then configuration from
// environment variables and YAML config files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(false)
}

func loadConfig(skipFlags bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: skipFlags,
		EnvPrefix: "CAMPUS",
		Files:     []string{"config.yaml", "/etc/campus-eats/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := cart.ParseRemovePolicy(c.Cart.RemovePolicy); err != nil {
		return errors.Wrap(err, "cart remove policy")
	}
	if c.Cart.FreeDeliveryThreshold < 0 || c.Cart.FlatDeliveryFee < 0 {
		return errors.New("delivery pricing must not be negative")
	}
	if c.Catalog.CurrencyExponent < 0 || c.Catalog.CurrencyExponent > 4 {
		return errors.Errorf("currency exponent %d out of range 0..4", c.Catalog.CurrencyExponent)
	}
	return nil
}

// CartSettings converts the cart section to the store configuration.
func (c *Config) CartSettings() cart.Config {
	policy, _ := cart.ParseRemovePolicy(c.Cart.RemovePolicy)
	return cart.Config{
		RemovePolicy: policy,
		Pricing: cart.Pricing{
			FreeDeliveryThreshold: c.Cart.FreeDeliveryThreshold,
			FlatDeliveryFee:       c.Cart.FlatDeliveryFee,
		},
	}
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CAMPUS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the immutable rate snapshot handed to the invoice
// assembler. Rates are integer cents; a rate change only affects invoices
// assembled after the snapshot is taken.
type BillingConfig struct {
	PerActivationCents int64  `mapstructure:"perActivationCents"`
	SetupFeeCents      int64  `mapstructure:"setupFeeCents"`
	Currency           string `mapstructure:"currency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PerActivationCents: 200,
		SetupFeeCents:      15000,
		Currency:           "usd",
	}
}

// BillingConfigHolder serves the current billing rates and hot-reloads them
// when the mounted config file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/adjustly/config")
	v.AddConfigPath("/etc/adjustly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ADJUSTLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.perActivationCents", defaults.PerActivationCents)
		v.SetDefault("billing.setupFeeCents", defaults.SetupFeeCents)
		v.SetDefault("billing.currency", defaults.Currency)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.PerActivationCents <= 0 {
		return errors.New("billing.perActivationCents must be positive")
	}
	if cfg.SetupFeeCents < 0 {
		return errors.New("billing.setupFeeCents cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	return nil
}

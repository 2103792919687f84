package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/FeliciaLa/coldcall-pro/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds every runtime setting. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	APIPrefix  string `env:"API_PREFIX"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Log        logger.LogConfig

	// Realtime speech provider
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	RealtimeModel  string `env:"REALTIME_MODEL"`
	ScorecardModel string `env:"SCORECARD_MODEL"`

	// Payments
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceID       string `env:"STRIPE_PRICE_ID"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL"`

	// Entitlements
	FreeCallLimit   int `env:"FREE_CALL_LIMIT"`
	PurchaseCredits int `env:"PURCHASE_CREDITS"`
}

var GlobalConfig *Config

// Load reads .env (per APP_ENV) and fills GlobalConfig from the environment.
func Load() error {
	env := os.Getenv("APP_ENV")
	if env != "" {
		if err := godotenv.Load(".env." + env); err != nil {
			// fall back to the plain .env file
			_ = godotenv.Load()
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := fromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return err
	}
	applyDefaults(cfg)
	GlobalConfig = cfg
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite"
	}
	if cfg.DSN == "" {
		cfg.DSN = "file:coldcall.db?cache=shared"
	}
	if cfg.RealtimeModel == "" {
		cfg.RealtimeModel = "gpt-realtime"
	}
	if cfg.ScorecardModel == "" {
		cfg.ScorecardModel = "gpt-4o"
	}
	if cfg.CheckoutSuccessURL == "" {
		cfg.CheckoutSuccessURL = "http://localhost:8000/?purchase=success"
	}
	if cfg.CheckoutCancelURL == "" {
		cfg.CheckoutCancelURL = "http://localhost:8000/?purchase=cancelled"
	}
	if cfg.FreeCallLimit <= 0 {
		cfg.FreeCallLimit = 3
	}
	if cfg.PurchaseCredits <= 0 {
		cfg.PurchaseCredits = 50
	}
}

// fromEnv fills struct fields tagged with `env`, recursing into nested structs.
func fromEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := fromEnv(field); err != nil {
				return err
			}
			continue
		}
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int, reflect.Int64:
			field.SetInt(cast.ToInt64(raw))
		case reflect.Bool:
			field.SetBool(cast.ToBool(raw))
		default:
			return fmt.Errorf("config: unsupported field kind %s for %s", field.Kind(), key)
		}
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SPARKLE"

// Config is the CLI configuration, read from sparkle.yaml, SPARKLE_*
// environment variables and flags, in increasing order of precedence.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Identity IdentityConfig `mapstructure:"identity"`
	Timeout  time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	LogLevel string         `mapstructure:"log_level" validate:"oneof=trace debug info warn error disabled"`
}

// StoreConfig selects and configures the store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=memory redis etcd rtdb"`
	Prefix  string `mapstructure:"prefix"`

	// rtdb
	URL        string `mapstructure:"url" validate:"required_if=Backend rtdb"`
	AuthToken  string `mapstructure:"auth_token"`
	Delivery   string `mapstructure:"delivery" validate:"omitempty,oneof=auto sse polling"`
	MaxRetries int    `mapstructure:"max_retries" validate:"gte=0"`

	// redis
	Addrs []string `mapstructure:"addrs" validate:"required_if=Backend redis"`
	DB    int      `mapstructure:"db" validate:"gte=0"`

	// etcd
	Endpoints []string `mapstructure:"endpoints" validate:"required_if=Backend etcd"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IdentityConfig locates the sealed identity file.
type IdentityConfig struct {
	File       string `mapstructure:"file" validate:"required"`
	Passphrase string `mapstructure:"passphrase"`
}

var (
	validate  = validator.New()
	lookupEnv = os.LookupEnv
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.delivery", "auto")
	v.SetDefault("store.max_retries", 3)
	v.SetDefault("store.db", 0)
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("identity.file", "sparkle.identity")
	v.SetDefault("identity.passphrase", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")

	// Lists stay nil unless set so that required_if sees them as missing.
	_ = v.BindEnv("store.addrs")
	_ = v.BindEnv("store.endpoints")
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"backend":    "store.backend",
	"identity":   "identity.file",
	"passphrase": "identity.passphrase",
	"timeout":    "timeout",
	"log-level":  "log_level",
}

// loadConfig reads configuration from file, environment and flags. An
// explicit file that does not exist is an error; the default search path
// may come up empty.
func loadConfig(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("sparkle")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sparkle")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setFlagsFromEnv fills flags not set on the command line from
// <prefix>_<FLAG_NAME> environment variables.
func setFlagsFromEnv(prefix string, fs *pflag.FlagSet) {
	set := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) {
		set[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if set[f.Name] {
			return
		}
		cleanPrefix := strings.TrimSuffix(prefix, "_")
		name := fmt.Sprintf("%s_%s", cleanPrefix, strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"))
		if e, ok := lookupEnv(name); ok {
			_ = f.Value.Set(e)
		}
	})
}

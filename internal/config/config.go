// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WireGate Contributors

// Package config loads gateway configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the externally supplied gateway configuration.
type Config struct {
	// ListenAddr is the gateway's TCP listen address.
	ListenAddr string `koanf:"listen_addr"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `koanf:"database_url"`

	// HashCost is the adaptive work factor (argon2id time cost) applied
	// when hashing new passwords.
	HashCost int `koanf:"hash_cost"`

	// TokenTTL is the session token validity window.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// MetricsAddr is the observability HTTP address. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// TLS enables TLS on the gateway listener. Without a certificate pair
	// an ephemeral self-signed certificate is generated.
	TLS bool `koanf:"tls"`

	// TLSCertFile and TLSKeyFile are a PEM certificate pair for the
	// gateway listener. Setting either implies TLS.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`

	// LogLevel is "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level"`

	// AuditBuffer is the async audit sink's channel capacity.
	AuditBuffer int `koanf:"audit_buffer"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  ":4800",
		HashCost:    1,
		TokenTTL:    7 * 24 * time.Hour,
		MetricsAddr: "127.0.0.1:9100",
		LogFormat:   "json",
		LogLevel:    "info",
		AuditBuffer: 256,
	}
}

// Load layers configuration: defaults, then the YAML file at path (if
// non-empty), then any flags the caller changed. Flag names use dashes and
// map to underscore keys (--listen-addr sets listen_addr).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if c.HashCost < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("hash_cost must be at least 1, got %d", c.HashCost)
	}
	if c.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return oops.Code("CONFIG_INVALID").Errorf("tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// TLSEnabled reports whether the gateway listener should speak TLS.
func (c Config) TLSEnabled() bool {
	return c.TLS || c.TLSCertFile != ""
}

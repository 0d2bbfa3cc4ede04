// Package config provides a reusable loader for TBC gateway configuration.
// It is versioned so that applications can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tbcnet/gateway/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified, environment-driven configuration for a TBC
// gateway instance. Every field corresponds to one of the recognized
// environment options in the protocol specification.
type Config struct {
	ListenAddr          string `mapstructure:"listen_addr" json:"listen_addr"`
	RPCURL              string `mapstructure:"rpc_url" json:"rpc_url"`
	ChainID             int64  `mapstructure:"chain_id" json:"chain_id"`
	SettlePollIntervalMS int   `mapstructure:"settle_poll_interval_ms" json:"settle_poll_interval_ms"`
	AllowOrigin         string `mapstructure:"allow_origin" json:"allow_origin"`
	TBCID               string `mapstructure:"tbc_id" json:"tbc_id"`
	WSPath              string `mapstructure:"ws_path" json:"ws_path"`
	LogLevel            string `mapstructure:"log_level" json:"log_level"`
	AdminKeys           string `mapstructure:"admin_keys" json:"-"`
}

// defaults mirrors the recognized-value defaults from the specification.
func defaults() Config {
	return Config{
		ListenAddr:           "0.0.0.0:8080",
		RPCURL:               "",
		ChainID:              369,
		SettlePollIntervalMS: 1000,
		AllowOrigin:          "*",
		TBCID:                "tbc-primary",
		WSPath:               "/tgp/ws",
		LogLevel:             "info",
		AdminKeys:            "",
	}
}

// Load reads environment-recognized configuration options, applying
// defaults for anything unset. A .env file in the working directory is
// loaded first (if present) so local development mirrors production
// environment-variable wiring; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := defaults()
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("rpc_url", cfg.RPCURL)
	v.SetDefault("chain_id", cfg.ChainID)
	v.SetDefault("settle_poll_interval_ms", cfg.SettlePollIntervalMS)
	v.SetDefault("allow_origin", cfg.AllowOrigin)
	v.SetDefault("tbc_id", cfg.TBCID)
	v.SetDefault("ws_path", cfg.WSPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("admin_keys", cfg.AdminKeys)

	for _, key := range []string{
		"listen_addr", "rpc_url", "chain_id", "settle_poll_interval_ms",
		"allow_origin", "tbc_id", "ws_path", "log_level", "admin_keys",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, utils.Wrap(err, "bind env "+key)
		}
	}

	if port := v.GetString("PORT"); port != "" {
		cfg.ListenAddr = "0.0.0.0:" + port
	} else {
		cfg.ListenAddr = v.GetString("listen_addr")
	}
	cfg.RPCURL = v.GetString("rpc_url")
	cfg.ChainID = v.GetInt64("chain_id")
	cfg.SettlePollIntervalMS = v.GetInt("settle_poll_interval_ms")
	cfg.AllowOrigin = v.GetString("allow_origin")
	cfg.TBCID = v.GetString("tbc_id")
	cfg.WSPath = v.GetString("ws_path")
	cfg.LogLevel = normalizeLogLevel(v.GetString("log_level"))
	cfg.AdminKeys = v.GetString("admin_keys")

	return &cfg, nil
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "error":
		return strings.ToLower(level)
	default:
		return "info"
	}
}

// Sanitized returns a copy of the config with credential-bearing fields
// masked, suitable for the admin GetConfig command.
func (c Config) Sanitized() map[string]any {
	return map[string]any{
		"listen_addr":             c.ListenAddr,
		"rpc_url":                 utils.MaskURL(c.RPCURL),
		"chain_id":                c.ChainID,
		"settle_poll_interval_ms": c.SettlePollIntervalMS,
		"allow_origin":            c.AllowOrigin,
		"tbc_id":                  c.TBCID,
		"ws_path":                 c.WSPath,
		"log_level":               c.LogLevel,
		"admin_keys":              utils.MaskAdminKeysEnv(c.AdminKeys),
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package config

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Error codes.
const (
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
	CodeInvalid    = "CONFIG_INVALID"
)

// flagKeys maps command-line flag names onto configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"addr":                      "server.addr",
	"url":                       "server.url",
	"metrics-addr":              "metrics.addr",
	"log-format":                "log.format",
	"log-level":                 "log.level",
	"database-url":              "database.url",
	"database-connect-attempts": "database.connect_attempts",
	"auto-migrate":              "database.auto_migrate",
	"jwt-algorithm":             "jwt.algorithm",
	"jwt-expires-in":            "jwt.expires_in",
	"refresh-expires-in":        "refresh.expires_in",
	"cookie-secure":             "cookie.secure",
	"anonymous":                 "anonymous.enabled",
	"breach-check":              "breach.enabled",
}

// RegisterFlags adds the configuration flags to fs with the built-in
// defaults, so an unset flag never overrides the file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("url", d.Server.URL, "externally visible base URL")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL (default $"+EnvDatabaseURL+")")
	fs.Int("database-connect-attempts", d.Database.ConnectAttempts, "database connection attempts at start")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations at start")
	fs.String("jwt-algorithm", d.JWT.Algorithm, "session token signing algorithm")
	fs.Duration("jwt-expires-in", d.JWT.ExpiresIn, "session token lifetime")
	fs.Duration("refresh-expires-in", d.Refresh.ExpiresIn, "refresh token lifetime")
	fs.Bool("cookie-secure", d.Cookie.Secure, "mark cookies Secure")
	fs.Bool("anonymous", d.Anonymous.Enabled, "allow anonymous sign-in")
	fs.Bool("breach-check", d.Breach.Enabled, "screen passwords against the breach corpus")
}

// Load reads the configuration. path may be empty to skip the file; flags
// may be nil. Secrets left empty fall back to the environment. The result is
// validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	return load(path, flags, nil)
}

func load(path string, flags *pflag.FlagSet, getenv func(string) string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code(CodeLoadFailed).With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			// Lists from the file replace the defaults instead of overlaying them.
			ZeroFields: true,
		},
	})
	if err != nil {
		return Config{}, oops.Code(CodeLoadFailed).With("operation", "decode").Wrap(err)
	}

	cfg.applyEnv(getenv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

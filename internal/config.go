package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

type NovarelConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir string `mapstructure:"workdir"`
	} `mapstructure:"storage"`

	Server struct {
		Addr     string `mapstructure:"addr"`
		HTTPAddr string `mapstructure:"http_addr"`
		Debug    bool   `mapstructure:"debug"`
	} `mapstructure:"server"`

	Security struct {
		ValidateSQL  bool `mapstructure:"validate_sql"`
		MaxSQLLength int  `mapstructure:"max_sql_length"`
	} `mapstructure:"security"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Export struct {
		Format      string `mapstructure:"format"`
		Compression string `mapstructure:"compression"`
	} `mapstructure:"export"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novarel")
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("server.addr", "127.0.0.1:8866")
	v.SetDefault("server.http_addr", "127.0.0.1:8080")
	v.SetDefault("server.debug", false)
	v.SetDefault("security.validate_sql", true)
	v.SetDefault("security.max_sql_length", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.compression", "none")
}

// LoadConfig reads a YAML config file. An empty path yields the defaults.
// Environment variables prefixed with NOVAREL_ override both (NOVAREL_SERVER_ADDR).
func LoadConfig(path string) (*NovarelConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NOVAREL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovarelConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Storage.Workdir == "" {
		return nil, errors.New("config: storage.workdir must not be empty")
	}

	return &cfg, nil
}

// LogLevel maps log.level to a slog level; unknown values fall back to info.
func (c *NovarelConfig) LogLevel() slog.Level {
	if c.Server.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for config.toml in the
// standard locations: ./config.toml, then /etc/net-relay/config.toml
// (or %ProgramData%\net-relay\config.toml on Windows).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("NET_RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	paths := []string{"."}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "net-relay"))
		}
	} else {
		paths = append(paths, "/etc/net-relay")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		path := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys for environment variable
// overrides, e.g. NET_RELAY_SERVER_SOCKS_PORT overrides server.socks_port.
// Slice-valued keys (users, rules, ip lists) are not bound — the config
// file is the source of truth for those.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.socks_port")
	_ = viper.BindEnv("server.http_port")
	_ = viper.BindEnv("server.api_port")

	_ = viper.BindEnv("security.auth_enabled")

	_ = viper.BindEnv("access_control.allow_by_default")

	_ = viper.BindEnv("limits.max_connections")
	_ = viper.BindEnv("limits.timeout")
	_ = viper.BindEnv("limits.idle_timeout")

	_ = viper.BindEnv("logging.level")
	_ = viper.BindEnv("logging.format")

	_ = viper.BindEnv("stats.max_history")
	_ = viper.BindEnv("stats.retention_hours")
}

// LoadConfig reads the configuration file (if any), applies environment
// overrides and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// not validate. Useful when a caller wants to apply CLI overrides before
// validation runs.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults(viper.IsSet)
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string when running purely off environment variables and defaults.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

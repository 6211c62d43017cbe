// Package config provides the configuration schema, file loading, and the
// live, hot-reloadable configuration store for net-relay.
//
// The schema is intentionally small: a forwarding proxy only needs to know
// where to listen, who may authenticate, which IPs and targets are allowed,
// and how much history to retain. It intentionally excludes:
//
//   - TLS termination (front the proxy with a reverse proxy if needed)
//   - persistent connection logs (in-memory history only)
//   - clustering / shared state across instances
//   - UDP ASSOCIATE / BIND / SOCKS4 (CONNECT-only)
package config

import "time"

// Config is the top-level, snapshotable configuration value. A Config
// value is always handled by-value once read from the Store: callers clone
// a snapshot and never hold the Store's lock across I/O.
type Config struct {
	Server        ServerConfig        `toml:"server" mapstructure:"server"`
	Security      SecurityConfig      `toml:"security" mapstructure:"security"`
	AccessControl AccessControlConfig `toml:"access_control" mapstructure:"access_control"`
	Limits        LimitsConfig        `toml:"limits" mapstructure:"limits"`
	Logging       LoggingConfig       `toml:"logging" mapstructure:"logging"`
	Stats         StatsConfig         `toml:"stats" mapstructure:"stats"`
}

// ServerConfig holds the bind host and the three independent listener ports.
type ServerConfig struct {
	Host      string `toml:"host" mapstructure:"host" validate:"required"`
	SocksPort int    `toml:"socks_port" mapstructure:"socks_port" validate:"required,min=1,max=65535"`
	HTTPPort  int    `toml:"http_port" mapstructure:"http_port" validate:"required,min=1,max=65535"`
	APIPort   int    `toml:"api_port" mapstructure:"api_port" validate:"required,min=1,max=65535"`
}

// SecurityConfig holds the authentication switch and the user list shared
// by the SOCKS5, HTTP CONNECT, and dashboard realms.
type SecurityConfig struct {
	AuthEnabled bool   `toml:"auth_enabled" mapstructure:"auth_enabled"`
	Users       []User `toml:"users" mapstructure:"users" validate:"omitempty,dive"`
}

// User is a single proxy credential. Username is unique (case-sensitive)
// across the user list; this is enforced by Config.Validate.
//
// Passwords are compared in plaintext, exactly as stored — this is the
// documented current contract, not an oversight; see DESIGN.md.
type User struct {
	Username        string `toml:"username" mapstructure:"username" validate:"required"`
	Password        string `toml:"password" mapstructure:"password" validate:"required"`
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	Description     string `toml:"description" mapstructure:"description"`
	BandwidthLimit  int64  `toml:"bandwidth_limit" mapstructure:"bandwidth_limit"`
	ConnectionLimit int    `toml:"connection_limit" mapstructure:"connection_limit"`
}

// AccessControlConfig holds the ordered target rule list, the IP allow/deny
// lists, and the default action for targets that no rule matches.
type AccessControlConfig struct {
	Rules          []Rule   `toml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
	IPWhitelist    []string `toml:"ip_whitelist" mapstructure:"ip_whitelist"`
	IPBlacklist    []string `toml:"ip_blacklist" mapstructure:"ip_blacklist"`
	AllowByDefault bool     `toml:"allow_by_default" mapstructure:"allow_by_default"`
}

// RuleAction is the outcome a matching Rule applies.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionDeny  RuleAction = "deny"
)

// Rule is a single target access-control entry. Rules are evaluated in
// declaration order; the first enabled, matching rule decides.
//
// Condition is additive: when set, it is a CEL expression evaluated
// against the request context in addition to DomainPattern/PathPrefix —
// a rule with no Condition behaves exactly as a plain pattern rule.
type Rule struct {
	Name          string     `toml:"name" mapstructure:"name" validate:"required"`
	DomainPattern string     `toml:"domain_pattern" mapstructure:"domain_pattern" validate:"required"`
	PathPrefix    string     `toml:"path_prefix" mapstructure:"path_prefix"`
	Condition     string     `toml:"condition" mapstructure:"condition"`
	Action        RuleAction `toml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
	Enabled       bool       `toml:"enabled" mapstructure:"enabled"`
}

// LimitsConfig holds connection/timeout limits.
//
// MaxConnections is enforced via internal/domain/ratelimit.ConnSemaphore;
// Timeout and IdleTimeout are declared but not enforced on established
// relay traffic — this core never imposes read/write deadlines on an
// active relay, per the recorded design decision (see DESIGN.md).
type LimitsConfig struct {
	MaxConnections int           `toml:"max_connections" mapstructure:"max_connections" validate:"omitempty,min=0"`
	Timeout        time.Duration `toml:"timeout" mapstructure:"timeout"`
	IdleTimeout    time.Duration `toml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `toml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// StatsConfig bounds the Stats Registry's in-memory history.
//
// RetentionHours is declared but not enforced: history is trimmed by
// MaxHistory (FIFO) only, never by age. This mirrors the recorded,
// documented gap — see DESIGN.md "Open Question resolutions".
type StatsConfig struct {
	MaxHistory     int `toml:"max_history" mapstructure:"max_history" validate:"omitempty,min=0"`
	RetentionHours int `toml:"retention_hours" mapstructure:"retention_hours" validate:"omitempty,min=0"`
}

// SetDefaults fills unset fields with the documented defaults. It must run
// after Unmarshal and before Validate, matching the order the loader uses.
// viper.IsSet distinguishes "not set" (zero value) from "explicitly false",
// which matters for the two boolean defaults below.
func (c *Config) SetDefaults(isSet func(key string) bool) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.SocksPort == 0 {
		c.Server.SocksPort = 1080
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.APIPort == 0 {
		c.Server.APIPort = 3000
	}
	if !isSet("access_control.allow_by_default") {
		c.AccessControl.AllowByDefault = true
	}
	if !isSet("security.auth_enabled") {
		c.Security.AuthEnabled = false
	}
	if c.Stats.MaxHistory == 0 {
		c.Stats.MaxHistory = 1000
	}
	if c.Stats.RetentionHours == 0 {
		c.Stats.RetentionHours = 24
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Clone returns a deep copy of the configuration, safe for a caller to hold
// and mutate without affecting the Store's own value.
func (c Config) Clone() Config {
	out := c
	out.Security.Users = append([]User(nil), c.Security.Users...)
	out.AccessControl.Rules = append([]Rule(nil), c.AccessControl.Rules...)
	out.AccessControl.IPWhitelist = append([]string(nil), c.AccessControl.IPWhitelist...)
	out.AccessControl.IPBlacklist = append([]string(nil), c.AccessControl.IPBlacklist...)
	return out
}

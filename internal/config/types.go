package config

import (
	"os"
	"strings"
)

// TokenPlaceholder is the sample credential shipped in example configs.
// A token equal to it is treated the same as no token at all.
const TokenPlaceholder = "your_discord_token_here"

// Environment variable names honored as overrides after the file parse.
const (
	EnvToken    = "DISCORD_TOKEN"
	EnvMongoURI = "MONGODB_URI"
)

type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sync      SyncConfig      `yaml:"sync"`
	EventLog  EventLogConfig  `yaml:"event_log"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`

	// CommandPrefix starts text commands, e.g. "!" for "!dmrole".
	CommandPrefix string `yaml:"command_prefix"`

	// Activity is the presence text set after login. Optional.
	Activity string `yaml:"activity"`
}

// HasCredential reports whether a usable bot token is configured.
// Empty and placeholder tokens select demo mode.
func (d DiscordConfig) HasCredential() bool {
	t := strings.TrimSpace(d.Token)
	return t != "" && t != TokenPlaceholder
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the document store driver.
//
// Driver values:
//   - "mongo":  MongoDB (URI from config or MONGODB_URI)
//   - "memory": in-process store, lost on restart
//   - "" is treated as "mongo"; "none" disables persistence
type StorageConfig struct {
	Driver   string   `yaml:"driver"`
	URI      string   `yaml:"uri"`
	Database string   `yaml:"database"`
	Timeout  Duration `yaml:"timeout"`
}

type BroadcastConfig struct {
	Workers     int      `yaml:"workers"`
	RatePerSec  int      `yaml:"rate_per_sec"`
	SendTimeout Duration `yaml:"send_timeout"`
	Deadline    Duration `yaml:"deadline"`
}

// SyncConfig controls periodic persistence of the active server and its
// roles into the document store.
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`

	// Spec is a cron spec or @every interval, e.g. "@every 15m".
	Spec string `yaml:"spec"`
}

type EventLogConfig struct {
	Capacity int  `yaml:"capacity"`
	Console  bool `yaml:"console"`
}

// Default returns the configuration used when the file omits a section.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix: "!",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Storage: StorageConfig{
			Driver:   "mongo",
			URI:      "mongodb://localhost:27017/discord-bot",
			Database: "discord-bot",
		},
		Broadcast: BroadcastConfig{
			Workers:     4,
			RatePerSec:  10,
			SendTimeout: Duration(defaultSendTimeout),
			Deadline:    Duration(defaultDeadline),
		},
		Sync: SyncConfig{
			Enabled: true,
			Spec:    "@every 15m",
		},
		EventLog: EventLogConfig{
			Capacity: 1000,
			Console:  true,
		},
	}
}

// normalize fills zero values with defaults and applies environment
// overrides. Runs after every successful parse.
func (c *Config) normalize() {
	def := Default()

	if strings.TrimSpace(c.Discord.CommandPrefix) == "" {
		c.Discord.CommandPrefix = def.Discord.CommandPrefix
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if strings.TrimSpace(c.Storage.URI) == "" {
		c.Storage.URI = def.Storage.URI
	}
	if strings.TrimSpace(c.Storage.Database) == "" {
		c.Storage.Database = def.Storage.Database
	}
	if c.Broadcast.Workers <= 0 {
		c.Broadcast.Workers = def.Broadcast.Workers
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = def.Broadcast.RatePerSec
	}
	if c.Broadcast.SendTimeout <= 0 {
		c.Broadcast.SendTimeout = def.Broadcast.SendTimeout
	}
	if c.Broadcast.Deadline <= 0 {
		c.Broadcast.Deadline = def.Broadcast.Deadline
	}
	if strings.TrimSpace(c.Sync.Spec) == "" {
		c.Sync.Spec = def.Sync.Spec
	}
	if c.EventLog.Capacity <= 0 {
		c.EventLog.Capacity = def.EventLog.Capacity
	}

	if v := os.Getenv(EnvToken); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.Storage.URI = v
	}
}

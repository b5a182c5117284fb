package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Server contains the HTTP bind settings.
type Server struct {
	Port string `toml:"port"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// State contains the location of the persisted sync state.
// An empty DBPath keeps sync state in memory only.
type State struct {
	DBPath string `toml:"db_path"`
}

// Sync contains alignment defaults.
type Sync struct {
	Streams   int     `toml:"streams"`
	EndPolicy string  `toml:"end_policy"`
	NudgeStep float64 `toml:"nudge_step"`
}

// Camera describes one stream slot. Its position in the list is its index.
type Camera struct {
	Name   string `toml:"name"`
	Source string `toml:"source"`
}

// Config encapsulates all configuration values for the sync service.
type Config struct {
	Server  Server   `toml:"server"`
	Logging Logging  `toml:"logging"`
	State   State    `toml:"state"`
	Sync    Sync     `toml:"sync"`
	Cameras []Camera `toml:"cameras"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Server:  Server{Port: "8080"},
		Logging: Logging{Level: "info", Format: "json"},
		State:   State{DBPath: "camsync.db"},
		Sync: Sync{
			Streams:   3,
			EndPolicy: "stopAllAtFirstEnd",
			NudgeStep: 0.1,
		},
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// LoadFile parses the TOML file at path over Default(). A missing file is not
// an error; exists reports whether one was read.
func LoadFile(path string) (cfg *Config, exists bool, err error) {
	c := Default()
	if strings.TrimSpace(path) == "" {
		return &c, false, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &c, false, nil
		}
		return nil, false, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(&c); err != nil {
		return nil, false, fmt.Errorf("parse config: %w", err)
	}
	return &c, true, nil
}

// ApplyEnv overrides file values with environment variables:
// PORT, LOG_LEVEL, LOG_FORMAT, STATE_DB_PATH, STREAM_COUNT, END_POLICY, NUDGE_STEP.
func (c *Config) ApplyEnv() {
	c.Server.Port = GetEnv("PORT", c.Server.Port)
	c.Logging.Level = GetEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnv("LOG_FORMAT", c.Logging.Format)
	c.State.DBPath = GetEnv("STATE_DB_PATH", c.State.DBPath)
	c.Sync.Streams = GetEnvInt("STREAM_COUNT", c.Sync.Streams)
	c.Sync.EndPolicy = GetEnv("END_POLICY", c.Sync.EndPolicy)
	c.Sync.NudgeStep = GetEnvFloat("NUDGE_STEP", c.Sync.NudgeStep)
}

// StreamCount returns the number of stream slots: the camera list length
// when cameras are configured, Sync.Streams otherwise.
func (c *Config) StreamCount() int {
	if len(c.Cameras) > 0 {
		return len(c.Cameras)
	}
	return c.Sync.Streams
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("config: server port is required")
	}
	if c.StreamCount() < 0 {
		return fmt.Errorf("config: stream count must not be negative, got %d", c.StreamCount())
	}
	if c.Sync.NudgeStep <= 0 {
		return fmt.Errorf("config: nudge step must be positive, got %v", c.Sync.NudgeStep)
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const (
	dirName         = "filedeck"
	fileName        = "config.json"
	dirPerms        = 0700
	filePerms       = 0600
	DefaultAuthURL  = "http://localhost:8000"
	DefaultMediaURL = "http://localhost:8001"
)

// Config holds persisted CLI configuration.
type Config struct {
	AuthURL  string `json:"auth_url"`
	MediaURL string `json:"media_url"`
	// PublicURL is the web origin share links point at. Empty means the
	// media URL.
	PublicURL string `json:"public_url,omitempty"`
}

// Environment overrides, first match wins.
var (
	authEnv   = []string{"FILEDECK_AUTH_API_URL", "AUTH_API_URL", "VITE_AUTH_API_URL"}
	mediaEnv  = []string{"FILEDECK_MEDIA_API_URL", "MEDIA_API_URL", "VITE_MEDIA_API_URL"}
	publicEnv = []string{"FILEDECK_PUBLIC_URL", "PUBLIC_URL"}
)

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Load reads .env (if present), the config file and the environment, in
// increasing order of precedence. A missing config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if p, err := Path(); err == nil {
		if err := readFile(p, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads a specific config file without consulting the environment.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := readFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := firstEnv(authEnv); v != "" {
		c.AuthURL = v
	}
	if v := firstEnv(mediaEnv); v != "" {
		c.MediaURL = v
	}
	if v := firstEnv(publicEnv); v != "" {
		c.PublicURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.MediaURL == "" {
		c.MediaURL = DefaultMediaURL
	}
}

func firstEnv(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// LinkBase returns the origin used to build share link URLs.
func (c *Config) LinkBase() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return strings.TrimRight(c.MediaURL, "/")
}

// Save writes the config to disk, creating the directory if needed.
func Save(cfg *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, cfg)
}

// SaveFile writes cfg to path with owner-only permissions.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePerms)
}

// Clear removes the config file.
func Clear() error {
	p, err := Path()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var setters = map[string]func(*Config, string){
	"auth_url":   func(c *Config, v string) { c.AuthURL = v },
	"media_url":  func(c *Config, v string) { c.MediaURL = v },
	"public_url": func(c *Config, v string) { c.PublicURL = v },
}

// Keys lists the settable keys.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set updates one key by its JSON name.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	if value != "" && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return fmt.Errorf("%s must start with http:// or https://", key)
	}
	set(c, strings.TrimRight(value, "/"))
	return nil
}

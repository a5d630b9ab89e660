package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is stored in ~/.coursehub/chat.toml.
type Config struct {
	Server ConfigServer `toml:"server"`
	Auth   ConfigAuth   `toml:"auth"`
}

type ConfigServer struct {
	BaseURL string `toml:"base_url"`
}

type ConfigAuth struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
}

const defaultBaseURL = "http://localhost:8080"

func configPath() (string, error) {
	if p := os.Getenv("COURSEHUB_CHAT_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".coursehub", "chat.toml"), nil
}

// loadConfig returns a zero Config when the file does not exist yet.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch strings.ToLower(key) {
	case "server.base_url":
		cfg.Server.BaseURL = value
	case "auth.token":
		cfg.Auth.Token = value
	case "auth.user_id":
		cfg.Auth.UserID = value
	default:
		return fmt.Errorf("unknown key %q (valid: server.base_url, auth.token, auth.user_id)", key)
	}
	return nil
}

func (c *Config) baseURL() string {
	if c.Server.BaseURL != "" {
		return c.Server.BaseURL
	}
	return defaultBaseURL
}

// session loads the config and insists on a token.
func session() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.Token == "" {
		return nil, fmt.Errorf("no token configured, run 'chatcli login <user-id>' or 'chatcli config set auth.token <token>'")
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:           "chatcli",
	Short:         "Course chat from the terminal",
	Long:          "Send and receive course chat messages.\nSettings live in ~/.coursehub/chat.toml.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

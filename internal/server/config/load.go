package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/placementhub/vault/internal/flagx"
	"github.com/spf13/viper"
)

// Load builds a Config from, in increasing precedence: defaults, a .env file
// in the working directory, the file passed via -c/-config, environment
// variables and command-line flags. The result is validated.
func Load() (*Config, error) {
	return load(os.Args[1:], ".env")
}

// LoadFile is Load for tools that parse their own arguments: it reads the
// optional file at path, .env and the environment, but no flags.
func LoadFile(path string) (*Config, error) {
	var args []string
	if path != "" {
		args = []string{"-config=" + path}
	}
	return load(args, ".env")
}

func load(args []string, envFile string) (*Config, error) {
	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := newViper()
	if path := flagx.ConfigFile(args); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.AllowedFileTypes = splitList(cfg.AllowedFileTypes)

	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// splitList trims entries and also splits entries that still contain commas,
// which happens when a list comes from a single env variable.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Package config loads verifyd configuration files and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before mapping.
	EnvPrefix = "VERIFYD_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Validator is implemented by config targets that check themselves after loading.
type Validator interface {
	Validate() error
}

// DefaultPath returns ~/.config/verifyd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "verifyd", "config.yaml"), nil
}

// Load fills target from a YAML file, then from VERIFYD_* environment
// variables. target should already hold defaults: keys absent from both
// sources keep their current values.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VERIFYD_SERVER_ADDR, VERIFYD_STORAGE_SQLITE_PATH, ...)
//  2. YAML config file
//  3. Defaults already present in target
//
// With an empty path the default path is used and a missing file is not an
// error. An explicit path must exist.
//
// Environment variables are split on the first underscore after the prefix:
//
//	VERIFYD_SERVER_ADDR          -> server.addr
//	VERIFYD_SESSION_PERSIST_TIMEOUT -> session.persist_timeout
func Load(path string, target interface{}) error {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}

	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// envKey maps VERIFYD_SECTION_FIELD_NAME to section.field_name.
func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate the already-open descriptor to avoid a stat/open race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFile(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func validateConfigFile(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", info.Name())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	if info.Mode().Perm()&0o022 != 0 {
		return fmt.Errorf("insecure permissions %o: config must not be group or world writable", info.Mode().Perm())
	}
	return nil
}

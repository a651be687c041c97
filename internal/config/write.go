package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// configFilePermissions restricts the config file to the owner because it
// holds personal access keys.
const configFilePermissions = 0o600

// configDirPermissions is the permission mode for config directories.
const configDirPermissions = 0o755

// Save encodes cfg as TOML and writes it to path atomically (temp file +
// rename), creating parent directories as needed.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return atomicWriteFile(path, buf.Bytes())
}

// SetDefaultAccount loads the config at path, points default_account at the
// account matching nameOrID, and saves it back.
func SetDefaultAccount(path, nameOrID string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	acct := cfg.FindAccount(nameOrID)
	if acct == nil {
		return fmt.Errorf("%w: account %q not found in config", ErrNoAccount, nameOrID)
	}

	slog.Info("setting default account",
		slog.String("path", path),
		slog.String("account", acct.Name),
	)

	cfg.DefaultAccount = acct.Name

	return Save(path, cfg)
}

// atomicWriteFile writes data to a temp file in the same directory and
// renames it over path, so readers never observe a partial file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("writing temp config file: %w", err)
	}

	if err := tmp.Chmod(configFilePermissions); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("setting config file permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("renaming config file: %w", err)
	}

	return nil
}

// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by live E2E tests.
const (
	EnvAllowedAccounts = "HUBSPOT_ALLOWED_TEST_ACCOUNTS"
	EnvTestAccount     = "HUBSPOT_TEST_ACCOUNT_ID"
	EnvTestAccessKey   = "HUBSPOT_TEST_ACCESS_KEY" //nolint:gosec // variable name, not a credential
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// AllowedTestAccount reports whether the account in EnvTestAccount is listed
// in EnvAllowedAccounts. Live tests upload files, so they only run against
// accounts someone has explicitly set aside.
func AllowedTestAccount() (string, error) {
	account := os.Getenv(EnvTestAccount)
	if account == "" {
		return "", fmt.Errorf("%s not set", EnvTestAccount)
	}

	allowlist := os.Getenv(EnvAllowedAccounts)
	if allowlist == "" {
		return "", fmt.Errorf("%s not set", EnvAllowedAccounts)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == account {
			return account, nil
		}
	}

	return "", fmt.Errorf("%s=%q is not in %s=%q", EnvTestAccount, account, EnvAllowedAccounts, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each table ("" for the top level) to its valid keys.
var knownKeys = map[string]map[string]bool{
	"": {
		"default_account": true, "account": true, "dev": true, "logging": true, "network": true,
	},
	"account": {
		"name": true, "account_id": true, "account_type": true, "personal_access_key": true, "env": true,
	},
	"dev": {
		"upload_permission": true, "debounce": true, "upload_concurrency": true, "poll_interval": true,
		"allowed_extensions": true, "ignore_file": true, "dev_server_url": true, "hot_reload_dirs": true,
		"history_file": true,
	},
	"logging": {
		"log_level": true,
	},
	"network": {
		"base_url": true, "timeout": true, "requests_per_second": true, "user_agent": true,
	},
}

// sortedKeys returns the keys of a table in sorted order so that ties in
// edit distance resolve deterministically.
func sortedKeys(table string) []string {
	keys := make([]string, 0, len(knownKeys[table]))
	for k := range knownKeys[table] {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, suggesting
// the closest known key in the same table.
func buildKeyError(key toml.Key) error {
	table := ""
	field := key[len(key)-1]

	if len(key) > 1 {
		table = key[0]
	}

	where := "config key"
	if table != "" {
		where = fmt.Sprintf("key in [%s]", table)
	}

	if _, ok := knownKeys[table]; !ok {
		return fmt.Errorf("unknown config section %q", strings.Join(key[:len(key)-1], "."))
	}

	if suggestion := closestMatch(field, sortedKeys(table)); suggestion != "" {
		return fmt.Errorf("unknown %s %q, did you mean %q?", where, field, suggestion)
	}

	return fmt.Errorf("unknown %s %q", where, field)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using a
// single-row dynamic programming table.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Package config loads pipeline configuration from a YAML file.
//
// Every field has a default, so a missing config file yields a fully usable
// configuration. The loaded values are treated as opaque by the rest of the
// pipeline: paths, endpoints, and the raw-unit minimum threshold.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline configuration.
type Config struct {
	// SourceDB is the path to the read-only source burn log (SQLite).
	SourceDB string `yaml:"source_db"`

	// Database is the path to the owned destination settlement store.
	Database string `yaml:"database"`

	// RPCURL is the destination ledger RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// TokenMint is the base58 address of the token mint on the
	// destination ledger.
	TokenMint string `yaml:"token_mint"`

	// Keypair is the path to the signing-authority keypair file.
	// If the file does not exist, settlement runs in simulation mode.
	Keypair string `yaml:"keypair"`

	// MinBurnAmount is the minimum qualifying burn in raw units
	// (six implied decimal places). Burns below this are never migrated.
	MinBurnAmount uint64 `yaml:"min_burn_amount"`

	// SubmitInterval is the pacing delay between mint submissions.
	SubmitInterval Duration `yaml:"submit_interval"`

	// ReportOutput is the path the HTML report is written to.
	ReportOutput string `yaml:"report_output"`
}

// Duration wraps time.Duration with YAML support for values like "2s".
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "2s" or "1500ms".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		SourceDB:       "burn-data/burns.db",
		Database:       "database/burnbridge.db",
		RPCURL:         "https://rpc-testnet.x1.wiki",
		TokenMint:      "2oaSsGnq1eNjMavSxh1g2XFqtV7SVYwaRJZaBznMyYJT",
		Keypair:        "~/.config/solana/id.json",
		MinBurnAmount:  420_000_000,
		SubmitInterval: Duration(2 * time.Second),
		ReportOutput:   "public/index.html",
	}
}

// Load reads configuration from path, applying defaults for absent fields.
// An empty path returns Default(). A path that cannot be read is an error;
// a file that exists but fails to parse is also an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
// Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

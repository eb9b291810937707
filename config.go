package docstruct

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the docstruct engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docstruct/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "docstruct".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.docstruct/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Persist keeps every successful extraction in the history database.
	// When false no database is opened.
	Persist bool `json:"persist" yaml:"persist"`

	// CleanText normalises element text before classification.
	CleanText bool `json:"clean_text" yaml:"clean_text"`

	// ValidatePDF runs pdfcpu validation before extracting PDF text.
	ValidatePDF bool `json:"validate_pdf" yaml:"validate_pdf"`

	// Chunking for spreadsheet reports
	ChunkMaxCharacters  int `json:"chunk_max_characters" yaml:"chunk_max_characters"`
	ChunkNewAfterNChars int `json:"chunk_new_after_n_chars" yaml:"chunk_new_after_n_chars"`

	// Server limits
	MaxUploadMB       int `json:"max_upload_mb" yaml:"max_upload_mb"`
	RequestTimeoutSec int `json:"request_timeout_sec" yaml:"request_timeout_sec"`

	// MCPRoot is the directory the server's /mcp tool may read files from.
	// The endpoint is not mounted when empty.
	MCPRoot string `json:"mcp_root" yaml:"mcp_root"`
}

// DefaultConfig returns a Config with sensible defaults. Persistence is off.
func DefaultConfig() Config {
	return Config{
		DBName:             "docstruct",
		StorageDir:         "home",
		ChunkMaxCharacters: 600,
		MaxUploadMB:        50,
		RequestTimeoutSec:  120,
	}
}

// LoadConfig reads a YAML or JSON (by extension) config file on top of
// DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks field ranges.
func (c Config) Validate() error {
	switch c.StorageDir {
	case "", "home", "local", "cwd":
	default:
		return fmt.Errorf("%w: storage_dir %q (want home or local)", ErrInvalidConfig, c.StorageDir)
	}
	if c.ChunkMaxCharacters < 0 || c.ChunkNewAfterNChars < 0 {
		return fmt.Errorf("%w: chunk sizes must not be negative", ErrInvalidConfig)
	}
	if c.ChunkMaxCharacters > 0 && c.ChunkNewAfterNChars > c.ChunkMaxCharacters {
		return fmt.Errorf("%w: chunk_new_after_n_chars %d exceeds chunk_max_characters %d",
			ErrInvalidConfig, c.ChunkNewAfterNChars, c.ChunkMaxCharacters)
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("%w: max_upload_mb must not be negative", ErrInvalidConfig)
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("%w: request_timeout_sec must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv overrides fields from DOCSTRUCT_* environment variables.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("DOCSTRUCT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getenv("DOCSTRUCT_PERSIST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTRUCT_PERSIST=%q", ErrInvalidConfig, v)
		}
		c.Persist = b
	}
	if v := getenv("DOCSTRUCT_CLEAN_TEXT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTRUCT_CLEAN_TEXT=%q", ErrInvalidConfig, v)
		}
		c.CleanText = b
	}
	if v := getenv("DOCSTRUCT_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTRUCT_MAX_UPLOAD_MB=%q", ErrInvalidConfig, v)
		}
		c.MaxUploadMB = n
	}
	if v := getenv("DOCSTRUCT_MCP_ROOT"); v != "" {
		c.MCPRoot = v
	}
	return c.Validate()
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docstruct"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".docstruct", name+".db")
	}
}

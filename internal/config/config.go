package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	App struct {
		Port     string `yaml:"port"`
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`
	} `yaml:"app"`
	Storage Storage `yaml:"storage"`
	AMQP    struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auth struct {
		APIKeys []APIKey `yaml:"api_keys"`
	} `yaml:"auth"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

type Storage struct {
	Type       string `yaml:"type"`
	FullDSN    string `yaml:"full_dsn"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

// APIKey binds the bcrypt hash of a key to the budget owner it unlocks.
type APIKey struct {
	OwnerID string `yaml:"owner_id"`
	Hash    string `yaml:"hash"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"APP_PORT":      &c.App.Port,
		"APP_ENV":       &c.App.Env,
		"LOG_LEVEL":     &c.App.LogLevel,
		"LOG_DIR":       &c.App.LogDir,
		"STORAGE_TYPE":  &c.Storage.Type,
		"FULL_DSN":      &c.Storage.FullDSN,
		"DB_USER":       &c.Storage.User,
		"DB_PASS":       &c.Storage.Password,
		"DB_HOST":       &c.Storage.Host,
		"DB_PORT":       &c.Storage.Port,
		"DB_NAME":       &c.Storage.Name,
		"SQLITE_PATH":   &c.Storage.SQLitePath,
		"AMQP_URL":      &c.AMQP.URL,
		"AMQP_EXCHANGE": &c.AMQP.Exchange,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		keys, err := parseAPIKeys(v)
		if err != nil {
			return err
		}
		c.Auth.APIKeys = keys
	}
	return nil
}

// parseAPIKeys reads "owner:hash,owner:hash". Bcrypt hashes never contain ':' or ','.
func parseAPIKeys(v string) ([]APIKey, error) {
	var keys []APIKey
	for _, entry := range splitList(v) {
		owner, hash, ok := strings.Cut(entry, ":")
		if !ok || owner == "" || hash == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q: expected owner:bcrypt-hash", entry)
		}
		keys = append(keys, APIKey{OwnerID: owner, Hash: hash})
	}
	return keys, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Name == "" {
		c.Storage.Name = "envelope_budget"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/envelope_budget.db"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "budget.events"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.App.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.App.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.Storage.Type {
	case "mysql":
		if c.Storage.FullDSN == "" && (c.Storage.User == "" || c.Storage.Password == "" || c.Storage.Host == "" || c.Storage.Port == "") {
			errors = append(errors, "mysql storage needs FULL_DSN or DB_USER, DB_PASS, DB_HOST and DB_PORT")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite storage")
		}
	case "inmemory":
	default:
		errors = append(errors, fmt.Sprintf("invalid storage type '%s': must be one of [mysql sqlite inmemory]", c.Storage.Type))
	}

	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.Auth.APIKeys) == 0 {
		errors = append(errors, "at least one API key is required")
	}
	for i, key := range c.Auth.APIKeys {
		if key.OwnerID == "" {
			errors = append(errors, fmt.Sprintf("api key %d has no owner", i))
		}
		if !strings.HasPrefix(key.Hash, "$2") {
			errors = append(errors, fmt.Sprintf("api key %d of owner '%s' is not a bcrypt hash", i, key.OwnerID))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when neither the argument nor CONFIG_PATH
// names a file.
const DefaultPath = "config/config.yaml"

// Config holds API endpoints, credentials, and collection settings. Credential
// fields are empty until set via the YAML file or environment overrides; use
// the accessor methods, which fail on unset credentials.
type Config struct {
	Stromme struct {
		APIURL         string `yaml:"api_url"`
		IDPURL         string `yaml:"idp_url"`
		BasicAuthToken string `yaml:"basic_auth_token"`
	} `yaml:"stromme"`

	Energinet struct {
		APIURL         string `yaml:"api_url"`
		BearerToken    string `yaml:"bearer_token"`
		AcceptLanguage string `yaml:"accept_language"`
	} `yaml:"energinet"`

	Frost struct {
		APIURL       string `yaml:"api_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"frost"`

	DataCollection struct {
		ChunkSizeDays int `yaml:"chunk_size_days"`
	} `yaml:"data_collection"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Stromme.APIURL = "https://api.stromme.io"
	cfg.Stromme.IDPURL = "https://idp.stromme.io/token"
	cfg.Energinet.APIURL = "https://www.energinet.net"
	cfg.Energinet.AcceptLanguage = "no"
	cfg.Frost.APIURL = "https://frost.met.no"
	cfg.DataCollection.ChunkSizeDays = 7
	return cfg
}

// Load reads configuration from the given path, CONFIG_PATH, or DefaultPath,
// in that order. A missing file is not an error: defaults plus environment
// overrides still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STROMME_BASIC_AUTH_TOKEN"); v != "" {
		c.Stromme.BasicAuthToken = v
	}
	if v := os.Getenv("ENERGINET_BEARER_TOKEN"); v != "" {
		c.Energinet.BearerToken = v
	}
	if v := os.Getenv("FROST_CLIENT_ID"); v != "" {
		c.Frost.ClientID = v
	}
	if v := os.Getenv("FROST_CLIENT_SECRET"); v != "" {
		c.Frost.ClientSecret = v
	}
}

// StrommeBasicAuthToken returns the Stromme IDP credential.
func (c *Config) StrommeBasicAuthToken() (string, error) {
	if c.Stromme.BasicAuthToken == "" {
		return "", errors.New("stromme basic_auth_token not configured — set STROMME_BASIC_AUTH_TOKEN or config.yaml")
	}
	return c.Stromme.BasicAuthToken, nil
}

// EnerginetBearerToken returns the Energinet API credential.
func (c *Config) EnerginetBearerToken() (string, error) {
	if c.Energinet.BearerToken == "" {
		return "", errors.New("energinet bearer_token not configured — set ENERGINET_BEARER_TOKEN or config.yaml")
	}
	return c.Energinet.BearerToken, nil
}

// FrostClientID returns the Frost API credential.
func (c *Config) FrostClientID() (string, error) {
	if c.Frost.ClientID == "" {
		return "", errors.New("frost client_id not configured — set FROST_CLIENT_ID or config.yaml")
	}
	return c.Frost.ClientID, nil
}

// LoadDotEnv reads a .env file and sets variables not already in the
// environment. A missing file is silently skipped.
func LoadDotEnv(path string) {
	f, err := os.Open(path)
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
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	AuthAPIConfig
	OIDCConfig
	CookieConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
}

type mainConfig struct {
	EnvVars
	AuthAPI
	OIDC
	Cookies
	Store
}

// New reads the configuration from the environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Cookies.validate(); err != nil {
		return nil, err
	}
	if err := c.Store.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// EnvVars holds general server settings.
type EnvVars struct {
	Port    string `env:"PORT" envDefault:"8080"`
	AppName string `env:"APP_NAME" envDefault:"Notes"`
	Env     string `env:"ENV" envDefault:"DEV"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if !strings.HasPrefix(e.Port, ":") {
		return ":" + e.Port
	}
	return e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

// GetBaseURL returns the externally visible URL of the server (e.g., "https://notes.example.com")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

type AuthAPIConfig interface {
	GetAuthAPIURL() string
	GetAuthAPIKey() string
}

// AuthAPI points at the hosted backend's auth endpoints.
type AuthAPI struct {
	URL string `env:"AUTH_API_URL" envDefault:"http://localhost:54321"`
	Key string `env:"AUTH_API_KEY"`
}

var _ AuthAPIConfig = AuthAPI{}

func (a AuthAPI) GetAuthAPIURL() string {
	return a.URL
}

func (a AuthAPI) GetAuthAPIKey() string {
	return a.Key
}

type OIDCConfig interface {
	GetOIDCEnabled() bool
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCScopes() []string
	GetOAuthFlowMaxAge() time.Duration
}

// OIDC configures the optional OAuth login path. It is disabled when no issuer is set.
type OIDC struct {
	Issuer       string        `env:"OIDC_ISSUER"`
	ClientID     string        `env:"OIDC_CLIENT_ID"`
	ClientSecret string        `env:"OIDC_CLIENT_SECRET"`
	Scopes       []string      `env:"OIDC_SCOPES" envSeparator:","`
	FlowMaxAge   time.Duration `env:"OAUTH_FLOW_MAX_AGE" envDefault:"15m"`
}

var _ OIDCConfig = OIDC{}

func (o OIDC) GetOIDCEnabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

func (o OIDC) GetOIDCIssuer() string {
	return o.Issuer
}

func (o OIDC) GetOIDCClientID() string {
	return o.ClientID
}

func (o OIDC) GetOIDCClientSecret() string {
	return o.ClientSecret
}

func (o OIDC) GetOIDCScopes() []string {
	return o.Scopes
}

func (o OIDC) GetOAuthFlowMaxAge() time.Duration {
	return o.FlowMaxAge
}

type CookieConfig interface {
	GetCookieHashKey() []byte
	GetCookieBlockKey() []byte
}

// Cookies holds the hex-encoded securecookie keys.
type Cookies struct {
	HashKey  string `env:"COOKIE_HASH_KEY"`
	BlockKey string `env:"COOKIE_BLOCK_KEY"`

	hashKey  []byte
	blockKey []byte
}

var _ CookieConfig = Cookies{}

func (c *Cookies) validate() error {
	var err error
	if c.HashKey == "" {
		// Development fallback: cookies do not survive a restart
		c.hashKey = randomKey(32)
	} else if c.hashKey, err = hex.DecodeString(c.HashKey); err != nil {
		return fmt.Errorf("COOKIE_HASH_KEY must be hex: %w", err)
	}

	if c.BlockKey == "" {
		return nil
	}
	if c.blockKey, err = hex.DecodeString(c.BlockKey); err != nil {
		return fmt.Errorf("COOKIE_BLOCK_KEY must be hex: %w", err)
	}
	switch len(c.blockKey) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes, got %d", len(c.blockKey))
	}
}

func (c Cookies) GetCookieHashKey() []byte {
	return c.hashKey
}

func (c Cookies) GetCookieBlockKey() []byte {
	return c.blockKey
}

type StoreConfig interface {
	GetNotesHome() string
	GetStoreEncryptionKey() (*[32]byte, bool)
}

// Store configures where the CLI keeps its credentials.
type Store struct {
	Home          string `env:"NOTES_HOME"`
	EncryptionKey string `env:"STORE_ENCRYPTION_KEY"`

	key *[32]byte
}

var _ StoreConfig = Store{}

func (s *Store) validate() error {
	if s.EncryptionKey == "" {
		return nil
	}
	raw, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return fmt.Errorf("STORE_ENCRYPTION_KEY must be hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("STORE_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(raw))
	}
	s.key = new([32]byte)
	copy(s.key[:], raw)
	return nil
}

// GetNotesHome returns the directory holding local credentials, ~/.notes by default
func (s Store) GetNotesHome() string {
	if s.Home != "" {
		return s.Home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notes"
	}
	return filepath.Join(home, ".notes")
}

func (s Store) GetStoreEncryptionKey() (*[32]byte, bool) {
	return s.key, s.key != nil
}

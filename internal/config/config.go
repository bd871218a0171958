// Package config loads the server configuration from the environment.
//
// Load reads an optional .env file, parses the environment into Config with
// caarlos0/env and validates the result. The struct is built once in main
// and passed into constructors; nothing reads the environment afterwards.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/sakif/mlvision/internal/auth"
)

// OAuthClient is one provider's client registration.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI" validate:"omitempty,url"`
}

// Configured reports whether every credential is present.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

// Partial reports whether some but not all credentials are present.
func (c OAuthClient) Partial() bool {
	return !c.Configured() && (c.ClientID != "" || c.ClientSecret != "" || c.RedirectURI != "")
}

type Config struct {
	HTTPPort        int           `env:"HTTP_PORT"        envDefault:"8080" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"  validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`

	DBDriver    string `env:"DB_DRIVER"    envDefault:"sqlite"           validate:"oneof=sqlite postgres"`
	DBPath      string `env:"DB_PATH"      envDefault:"data/mlvision.db" validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `env:"DATABASE_URL"                               validate:"required_if=DBDriver postgres"`

	JWTSecret       string        `env:"JWT_SECRET,required" validate:"min=16"`
	JWTAlgorithm    string        `env:"JWT_ALGORITHM"     envDefault:"HS256"    validate:"oneof=HS256 HS384 HS512"`
	JWTIssuer       string        `env:"JWT_ISSUER"        envDefault:"mlvision" validate:"required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"      validate:"gt=0"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"     validate:"gtfield=AccessTokenTTL"`

	OAuthStateTTL    time.Duration `env:"OAUTH_STATE_TTL"    envDefault:"10m" validate:"gt=0"`
	OAuthHTTPTimeout time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	FrontendURL      string        `env:"FRONTEND_URL"       envDefault:"http://localhost:3000" validate:"required,http_url"`

	Google OAuthClient `envPrefix:"GOOGLE_"`
	GitHub OAuthClient `envPrefix:"GITHUB_"`

	// CORSAllowedOrigins defaults to FrontendURL when empty.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," validate:"dive,http_url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env (if present) into the process environment and parses it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnvironment(env.ToMap(os.Environ()))
}

// FromEnvironment parses and validates a Config from an explicit
// environment. Tests use it to avoid touching the process environment.
func FromEnvironment(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TokenConfig is the token codec configuration.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:    c.JWTSecret,
		Algorithm: c.JWTAlgorithm,
		Issuer:    c.JWTIssuer,
	}
}

// GoogleProvider returns the Google adapter configuration using client for
// all outbound calls.
func (c *Config) GoogleProvider(client *http.Client) auth.ProviderConfig {
	return providerConfig(c.Google, client)
}

// GitHubProvider returns the GitHub adapter configuration.
func (c *Config) GitHubProvider(client *http.Client) auth.ProviderConfig {
	return providerConfig(c.GitHub, client)
}

func providerConfig(oc OAuthClient, client *http.Client) auth.ProviderConfig {
	return auth.ProviderConfig{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURI,
		HTTPClient:   client,
	}
}

// Package launcher starts, supervises and tears down the NapCat-QCE
// service process, and resolves the access credential needed to talk
// to it.
package launcher

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/config"
	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
)

// EnvTokenVar is the environment variable the resolver consults.
const EnvTokenVar = "NAPCAT_QCE_TOKEN"

// Credential sources, in precedence order.
const (
	SourceExplicit   = "explicit"
	SourceEnv        = "environment"
	SourceConfigFile = "config-file"
	SourceLauncher   = "launcher"
)

// Credential is a resolved access token. It is immutable once resolved
// for the lifetime of a client.
type Credential struct {
	Token  string
	Source string
}

// TokenResolver resolves an access credential from an ordered set of
// sources: explicit argument, environment variable, on-disk security
// config, and finally a token supplied by a running supervisor.
type TokenResolver struct {
	// ConfigPath overrides the default security.json location (for tests).
	ConfigPath string
	// SupervisorToken is consulted last; typically the token extracted
	// from a freshly launched service's output.
	SupervisorToken func() string

	logger *logger.Logger
}

// NewTokenResolver creates a resolver with the default config location.
func NewTokenResolver() *TokenResolver {
	return &TokenResolver{
		ConfigPath: SecurityConfigPath(),
		logger:     logger.Default().WithFields(zap.String("component", "token-resolver")),
	}
}

// SecurityConfigPath returns the path of the service's security.json.
func SecurityConfigPath() string {
	return filepath.Join(config.ConfigDir(), "security.json")
}

// securityConfig mirrors the fields of security.json the SDK cares about.
type securityConfig struct {
	AccessToken string `json:"accessToken"`
	ServerHost  string `json:"serverHost"`
}

// Resolve returns the first credential found. Pure lookup: no network
// calls, no side effects. A missing or corrupt config file counts as
// absent rather than an error, since credential discovery is advisory.
func (r *TokenResolver) Resolve(explicit string) (*Credential, error) {
	if explicit != "" {
		return &Credential{Token: explicit, Source: SourceExplicit}, nil
	}

	if token := os.Getenv(EnvTokenVar); token != "" {
		return &Credential{Token: token, Source: SourceEnv}, nil
	}

	if cfg := r.loadSecurityConfig(); cfg != nil && cfg.AccessToken != "" {
		return &Credential{Token: cfg.AccessToken, Source: SourceConfigFile}, nil
	}

	if r.SupervisorToken != nil {
		if token := r.SupervisorToken(); token != "" {
			return &Credential{Token: token, Source: SourceLauncher}, nil
		}
	}

	return nil, errors.NoCredential(
		"no access token found: pass one explicitly, set " + EnvTokenVar +
			", or run the NapCat-QCE service on this machine")
}

// ServerHost returns the host recorded in security.json, or empty.
func (r *TokenResolver) ServerHost() string {
	if cfg := r.loadSecurityConfig(); cfg != nil {
		return cfg.ServerHost
	}
	return ""
}

func (r *TokenResolver) loadSecurityConfig() *securityConfig {
	path := r.ConfigPath
	if path == "" {
		path = SecurityConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg securityConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		if r.logger != nil {
			r.logger.Warn("security config unreadable, treating as absent",
				zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	return &cfg
}

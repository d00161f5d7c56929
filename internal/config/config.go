/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pforte-idm/pforte/internal/auth"
	"github.com/pforte-idm/pforte/internal/view"
)

// EnvPrefix marks environment variables that override configuration leaves,
// e.g. api_config_ldap_bind_password.
const EnvPrefix = "api_config_"

// Config is the fully parsed configuration file.
type Config struct {
	LDAP         LDAPConfig     `yaml:"ldap"`
	Auth         AuthConfig     `yaml:"auth"`
	Mail         MailConfig     `yaml:"mail"`
	Views        view.ViewSpecs `yaml:"views"`
	AllowOrigins []string       `yaml:"allowOrigins"`
}

// LDAPConfig configures the directory gateway.
type LDAPConfig struct {
	ServerURI      string `yaml:"serverUri"`
	Prefix         string `yaml:"prefix"`
	BindDN         string `yaml:"bindDn"`
	BindPassword   string `yaml:"bindPassword"`
	TimeoutSeconds int    `yaml:"timeout"`
}

// Timeout returns the per-operation timeout.
func (c LDAPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig configures token issuance and the anti-spam question set.
type AuthConfig struct {
	SecretKey                  string         `yaml:"secretKey"`
	HeaderPrefix               string         `yaml:"headerPrefix"`
	ExpirationSeconds          int            `yaml:"expiration"`
	AutoLoginExpirationSeconds int            `yaml:"autoLoginExpiration"`
	View                       string         `yaml:"view"`
	AntiSpam                   AntiSpamConfig `yaml:"antiSpam"`
}

// AntiSpamConfig carries the closed set of registration challenges.
type AntiSpamConfig struct {
	Questions []auth.QuestionSpec `yaml:"questions"`
}

// Expiration returns the regular token lifetime.
func (c AuthConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationSeconds) * time.Second
}

// AutoLoginExpiration returns the lifetime of tokens sent by mail.
func (c AuthConfig) AutoLoginExpiration() time.Duration {
	return time.Duration(c.AutoLoginExpirationSeconds) * time.Second
}

// MailConfig configures the SMTP mailer. An empty host disables mail
// delivery (and with it the mail-login endpoint).
type MailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	SSL         bool   `yaml:"ssl"`
	StartTLS    bool   `yaml:"starttls"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Sender      string `yaml:"sender"`
	SiteBaseURL string `yaml:"siteBaseUrl"`
	SiteName    string `yaml:"siteName"`
}

// Load reads the configuration file, applies environment overrides, and
// validates the result.
func Load(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read configuration: %w", err)
	}
	return parse(buf, os.Environ())
}

func parse(buf []byte, environ []string) (Config, error) {
	var root yaml.Node
	err := yaml.Unmarshal(buf, &root)
	if err != nil {
		return Config{}, fmt.Errorf("cannot parse configuration: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return Config{}, errors.New("cannot parse configuration: empty document")
	}

	err = applyEnvOverrides(root.Content[0], environ)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	err = root.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("cannot parse configuration: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.LDAP.ServerURI == "" {
		return errors.New("configuration error: ldap.serverUri is required")
	}
	if c.LDAP.BindDN == "" || c.LDAP.BindPassword == "" {
		return errors.New("configuration error: ldap.bindDn and ldap.bindPassword are required")
	}
	if c.Auth.SecretKey == "" {
		return errors.New("configuration error: auth.secretKey is required")
	}
	if c.Auth.View == "" {
		return errors.New("configuration error: auth.view is required")
	}
	if len(c.Views) == 0 {
		return errors.New("configuration error: at least one view is required")
	}
	found := false
	for _, spec := range c.Views {
		if spec.Key == c.Auth.View {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("configuration error: auth.view references unknown view %q", c.Auth.View)
	}
	if c.Mail.SSL && c.Mail.StartTLS {
		return errors.New("configuration error: mail.ssl and mail.starttls are mutually exclusive")
	}
	return nil
}

// Package config loads cinderd's YAML configuration file into the
// shape internal/state.Config and cmd/cinderd's listener setup expect.
//
// Grounded on other_examples/58157717_DanielOaks-oragono__irc-config.go.go's
// Config struct shape (exported fields deserialize directly from YAML,
// unexported ones are derived by Load), trimmed to the fields this
// server actually has a use for.
package config

import (
	"fmt"
	"io/ioutil"
	"net"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/horgh/cinder/internal/state"
)

// OperConfig is one configured operator, as written in the YAML file:
// BcryptHash is the hash of the oper password, never the password
// itself.
type OperConfig struct {
	Name       string
	BcryptHash string `yaml:"bcrypt-hash"`
}

// ListenConfig describes one bound address, with optional TLS.
type ListenConfig struct {
	Address string
	TLSCert string `yaml:"tls-cert"`
	TLSKey  string `yaml:"tls-key"`
}

// SASLConfig selects and configures the SASL backend.
type SASLConfig struct {
	Backend         string `yaml:"backend"` // "" or "none" disables SASL
	CredentialsFile string `yaml:"credentials-file"`
}

// Limits mirrors state.Limits, duplicated here so the YAML field tags
// don't leak into internal/state.
type Limits struct {
	Away     int `yaml:"awaylen"`
	Channel  int `yaml:"channellen"`
	Kick     int `yaml:"kicklen"`
	Realname int `yaml:"realnamelen"`
	Nick     int `yaml:"nicklen"`
	Topic    int `yaml:"topiclen"`
	User     int `yaml:"userlen"`
}

// Config is the root of the YAML document.
type Config struct {
	Domain string

	Admin struct {
		Name     string
		Location string
		Email    string
	}

	MOTDFile string `yaml:"motd-file"`

	Password string

	DefaultChannelModes string `yaml:"default-channel-modes"`

	Opers []OperConfig

	Limits Limits

	LoginTimeoutMS int `yaml:"login-timeout-ms"`

	SASL SASLConfig

	Listen []ListenConfig

	// motd holds the MOTD file's contents, read by Load.
	motd string

	// Filename is the path Load was given.
	Filename string
}

// Load reads and validates filename, also reading the referenced MOTD
// file if one is configured.
func Load(filename string) (*Config, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	cfg.Filename = filename

	if cfg.Domain == "" {
		return nil, fmt.Errorf("config: domain is required")
	}
	if len(cfg.Listen) == 0 {
		return nil, fmt.Errorf("config: at least one listen block is required")
	}
	if cfg.LoginTimeoutMS <= 0 {
		cfg.LoginTimeoutMS = 60000
	}

	if cfg.MOTDFile != "" {
		motd, err := ioutil.ReadFile(cfg.MOTDFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading motd file")
		}
		cfg.motd = string(motd)
	}

	return &cfg, nil
}

// MOTD returns the loaded MOTD text, "" if none was configured.
func (c *Config) MOTD() string {
	return c.motd
}

// StateConfig converts to the surface internal/state.Network consumes.
func (c *Config) StateConfig() state.Config {
	opers := make([]state.OperConfig, len(c.Opers))
	for i, o := range c.Opers {
		opers[i] = state.OperConfig{Name: o.Name, BcryptHash: o.BcryptHash}
	}
	return state.Config{
		Domain:              c.Domain,
		AdminName:           c.Admin.Name,
		AdminLocation:       c.Admin.Location,
		AdminMail:           c.Admin.Email,
		MOTD:                c.motd,
		Password:            c.Password,
		DefaultChannelModes: c.DefaultChannelModes,
		Opers:               opers,
		Limits: state.Limits{
			Away:     c.Limits.Away,
			Channel:  c.Limits.Channel,
			Kick:     c.Limits.Kick,
			Realname: c.Limits.Realname,
			Nick:     c.Limits.Nick,
			Topic:    c.Limits.Topic,
			User:     c.Limits.User,
		},
		LoginTimeoutMS: c.LoginTimeoutMS,
	}
}

// ListenAddresses returns every configured bind address, validating
// that none are malformed host:port pairs.
func (c *Config) ListenAddresses() ([]ListenConfig, error) {
	for _, l := range c.Listen {
		if _, _, err := net.SplitHostPort(l.Address); err != nil {
			return nil, errors.Wrapf(err, "listen address %q", l.Address)
		}
	}
	return c.Listen, nil
}

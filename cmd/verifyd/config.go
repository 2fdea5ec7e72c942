package main

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/verifyd/internal/config"
	vhttp "github.com/fyrsmithlabs/verifyd/internal/http"
	"github.com/fyrsmithlabs/verifyd/internal/logging"
	"github.com/fyrsmithlabs/verifyd/internal/notify"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/session"
	"github.com/fyrsmithlabs/verifyd/internal/telemetry"
)

// Config is the daemon configuration. Each section is owned by the
// package it configures.
type Config struct {
	Server    vhttp.Config       `koanf:"server"`
	Session   session.Config     `koanf:"session"`
	Storage   persistence.Config `koanf:"storage"`
	NATS      notify.Config      `koanf:"nats"`
	Schema    SchemaConfig       `koanf:"schema"`
	Logging   logging.Config     `koanf:"logging"`
	Telemetry telemetry.Config   `koanf:"telemetry"`
}

// SchemaConfig selects the feedback field options. FieldsFile wins over
// Fields when both are set.
type SchemaConfig struct {
	Fields     []session.FieldOption `koanf:"fields"`
	FieldsFile string                `koanf:"fields_file"`
}

// defaultConfig returns a config that serves on localhost with an
// in-memory gateway and no NATS.
func defaultConfig() *Config {
	return &Config{
		Server:    *vhttp.NewDefaultConfig(),
		Session:   *session.DefaultConfig(),
		Storage:   persistence.Config{Driver: persistence.DriverMemory},
		NATS:      notify.DefaultConfig(),
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// loadConfig layers the YAML file at path and VERIFYD_* variables over
// the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := config.Load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	check("server", c.Server.Validate())
	check("session", c.Session.Validate())
	check("storage", c.Storage.Validate())
	check("logging", c.Logging.Validate())
	check("telemetry", c.Telemetry.Validate())
	check("nats", c.NATS.Validate())
	return errors.Join(errs...)
}

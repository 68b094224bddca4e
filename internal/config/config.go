package config

import (
	"fmt"

	"github.com/Netflix/go-env"

	"github.com/avast/jarverifier/apilevel"
)

// Environment variables with defaults. Command line flags override them.
type Environment struct {
	Environment string `env:"JARVERIFY_ENVIRONMENT,default=dev"`
	LogLevel    string `env:"JARVERIFY_LOG_LEVEL,default=warn"`

	// verification settings
	MinSdkVersion int32  `env:"JARVERIFY_MIN_SDK,default=0"`
	MaxSdkVersion int32  `env:"JARVERIFY_MAX_SDK,default=2147483647"`
	Format        string `env:"JARVERIFY_FORMAT,default=text"`
}

var validEnvs = map[string]bool{
	"dev":  true,
	"test": true,
	"prod": true,
}

var validFormats = map[string]bool{
	"text": true,
	"json": true,
	"yaml": true,
}

// NewConfig loads environment variables and returns the validated configuration.
func NewConfig() (*Environment, error) {
	var cfg Environment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Environment) Validate() error {
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid JARVERIFY_ENVIRONMENT: %s", cfg.Environment)
	}
	if !validFormats[cfg.Format] {
		return fmt.Errorf("invalid output format: %s (must be text, json or yaml)", cfg.Format)
	}
	if cfg.MinSdkVersion < apilevel.V_AnyMin {
		return fmt.Errorf("minimum SDK version must be 0 or greater, got %d", cfg.MinSdkVersion)
	}
	if cfg.MinSdkVersion > cfg.MaxSdkVersion {
		return fmt.Errorf("minimum SDK version (%d) cannot be greater than maximum SDK version (%d)",
			cfg.MinSdkVersion, cfg.MaxSdkVersion)
	}
	return nil
}

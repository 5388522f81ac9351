// Package config loads the service configuration from a YAML file.
// Environment variables referenced as $NAME in the file are expanded
// before decoding.
package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address        string   `yaml:"address"`
	BaseDomain     string   `yaml:"base_domain" validate:"required"`
	ProviderIssuer string   `yaml:"provider_issuer" validate:"required,url"`
	Scopes         []string `yaml:"scopes"`
	MaxLevel       int      `yaml:"max_level"`
	ExpansionID    int      `yaml:"expansion_id"`
	FanoutLimit    int      `yaml:"fanout_limit" validate:"omitempty,min=1"`
	// RequireOriginSecret gates the CDN origin header check.
	RequireOriginSecret bool `yaml:"require_origin_secret"`
}

func LoadConfigFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	cfg := new(Config)
	err = yaml.Unmarshal([]byte(expanded), cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg.applyDefaults()

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})

	err = validate.Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "wow.profile"}
	}
	if c.MaxLevel == 0 {
		c.MaxLevel = 70
	}
	if c.ExpansionID == 0 {
		c.ExpansionID = 503
	}
	if c.FanoutLimit == 0 {
		c.FanoutLimit = 8
	}
}

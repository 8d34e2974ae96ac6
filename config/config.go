// Package config loads the autoload list and modules directory
// configuration through a small Feeder abstraction supporting TOML, YAML
// and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AutoloadConfig is the on-disk shape of an autoload list plus modules
// directory.
type AutoloadConfig struct {
	Autoload struct {
		ModulesDir      string        `toml:"modules_dir" yaml:"modules_dir"`
		Order           []string      `toml:"order" yaml:"order"`
		RescanInterval  time.Duration `toml:"-" yaml:"-"`
		RescanIntervalS string        `toml:"rescan_interval" yaml:"rescan_interval"`
	} `toml:"autoload" yaml:"autoload"`
}

// Feeder is something that can populate a struct from an external
// source.
type Feeder interface {
	Feed(target any) error
}

// TOMLFeeder reads an AutoloadConfig from a TOML file.
type TOMLFeeder struct{ Path string }

func (f TOMLFeeder) Feed(target any) error {
	_, err := toml.DecodeFile(f.Path, target)
	return err
}

// YAMLFeeder reads an AutoloadConfig from a YAML file.
type YAMLFeeder struct{ Path string }

func (f YAMLFeeder) Feed(target any) error {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, target)
}

// EnvFeeder overrides ModulesDir from LBBS_MODULES_DIR, matching the
// teacher's feeders.EnvFeeder precedence: env feeders run last and win.
type EnvFeeder struct{}

func (EnvFeeder) Feed(target any) error {
	cfg, ok := target.(*AutoloadConfig)
	if !ok {
		return fmt.Errorf("config: EnvFeeder requires *AutoloadConfig, got %T", target)
	}
	if v := os.Getenv("LBBS_MODULES_DIR"); v != "" {
		cfg.Autoload.ModulesDir = v
	}
	return nil
}

// Load runs each feeder over cfg in order, the same "register config
// sections then load" two-phase flow StdApplication.Init follows, and
// resolves RescanInterval from its string form.
func Load(feeders ...Feeder) (*AutoloadConfig, error) {
	cfg := &AutoloadConfig{}
	for _, f := range feeders {
		if err := f.Feed(cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if cfg.Autoload.RescanIntervalS != "" {
		d, err := time.ParseDuration(cfg.Autoload.RescanIntervalS)
		if err != nil {
			return nil, fmt.Errorf("config: rescan_interval: %w", err)
		}
		cfg.Autoload.RescanInterval = d
	}
	return cfg, nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultOutputPath = "./places_anonymized.sqlite"

// Mode selects how the column list for a run is produced.
type Mode string

const (
	// ModePlaces uses the built-in list of Firefox places.sqlite columns.
	ModePlaces Mode = "places"
	// ModeGeneric anonymizes every column of every user table.
	ModeGeneric Mode = "generic"
	// ModeRules uses the [[rule]] entries of the config file.
	ModeRules Mode = "rules"
)

// Config holds the TOML-driven run configuration. Every field has a CLI flag
// or default; the file is optional.
type Config struct {
	Mode          Mode         `toml:"mode"`
	Output        string       `toml:"output"`
	Source        string       `toml:"source"`
	ProfilesDir   string       `toml:"profiles_dir"`
	Force         bool         `toml:"force"`
	Vacuum        bool         `toml:"vacuum"`
	ExcludeTables []string     `toml:"exclude_tables"` // generic mode only
	Hooks         HooksConfig  `toml:"hooks"`
	Rules         []RuleConfig `toml:"rule"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

type HooksConfig struct {
	BeforeRewrite []string `toml:"before_rewrite"`
	AfterRewrite  []string `toml:"after_rewrite"`
}

// RuleConfig is one [[rule]] entry; it becomes a ColumnSpec.
type RuleConfig struct {
	Table     string `toml:"table"`
	Column    string `toml:"column"`
	Treatment string `toml:"treatment"`
	Value     any    `toml:"value"`
	Optional  bool   `toml:"optional"`
}

func defaultConfig() Config {
	return Config{
		Mode:   ModePlaces,
		Output: defaultOutputPath,
		Vacuum: true,
	}
}

// loadConfig reads a TOML config file and returns a Config with defaults applied.
// An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.configDir = wd
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	// Paths written in the file are relative to the file, not the working directory.
	for key, p := range map[string]*string{"output": &cfg.Output, "source": &cfg.Source, "profiles_dir": &cfg.ProfilesDir} {
		if md.IsDefined(key) && *p != "" {
			*p = cfg.resolvePath(*p)
		}
	}

	// Checks that depend on the mode wait for validate, after flags are applied.
	if err := cfg.checkFields(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkFields normalizes and checks what is valid or invalid in any mode.
func (c *Config) checkFields() error {
	c.Mode = Mode(strings.TrimSpace(string(c.Mode)))
	if c.Mode == "" {
		c.Mode = ModePlaces
	}
	switch c.Mode {
	case ModePlaces, ModeGeneric, ModeRules:
	default:
		return fmt.Errorf("mode must be one of: places, generic, rules")
	}

	c.Output = strings.TrimSpace(c.Output)
	if c.Output == "" {
		c.Output = defaultOutputPath
	}

	for i, r := range c.Rules {
		if _, err := r.spec(); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return nil
}

// validate checks the final configuration, once file values and flags are merged.
func (c *Config) validate() error {
	if err := c.checkFields(); err != nil {
		return err
	}
	if len(c.ExcludeTables) > 0 && c.Mode != ModeGeneric {
		return fmt.Errorf("exclude_tables is only valid with mode = \"generic\"")
	}
	if c.Mode == ModeRules && len(c.Rules) == 0 {
		return fmt.Errorf("mode = \"rules\" requires at least one [[rule]]")
	}
	if c.Mode != ModeRules && len(c.Rules) > 0 {
		return fmt.Errorf("[[rule]] entries require mode = \"rules\"")
	}
	return nil
}

func (r RuleConfig) spec() (ColumnSpec, error) {
	s := ColumnSpec{
		Table:     strings.TrimSpace(r.Table),
		Column:    strings.TrimSpace(r.Column),
		Treatment: Treatment(strings.TrimSpace(r.Treatment)),
		Value:     r.Value,
		Optional:  r.Optional,
	}
	if s.Treatment != TreatSetConstant && s.Value != nil {
		return ColumnSpec{}, fmt.Errorf("%s: value is only valid for set_constant", s.Table)
	}
	if err := s.validate(); err != nil {
		return ColumnSpec{}, err
	}
	return s, nil
}

// ruleSpecs returns the [[rule]] entries as column specs.
func (c *Config) ruleSpecs() ([]ColumnSpec, error) {
	specs := make([]ColumnSpec, 0, len(c.Rules))
	for i, r := range c.Rules {
		s, err := r.spec()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *Config) resolvePath(p string) string {
	if filepath.IsAbs(p) || c.configDir == "" {
		return p
	}
	return filepath.Join(c.configDir, p)
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfgFile := writeConfig(t, "anonymize.toml", `
mode = "generic"
output = "out/anon.sqlite"
source = "/profiles/abc.default/places.sqlite"
force = true
vacuum = false
exclude_tables = ["moz_meta"]

[hooks]
before_rewrite = ["pre.sql"]
after_rewrite = ["post.sql"]
`)
	dir := filepath.Dir(cfgFile)

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if cfg.Mode != ModeGeneric {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeGeneric)
	}
	if want := filepath.Join(dir, "out/anon.sqlite"); cfg.Output != want {
		t.Errorf("Output = %q, want %q", cfg.Output, want)
	}
	if cfg.Source != "/profiles/abc.default/places.sqlite" {
		t.Errorf("Source = %q", cfg.Source)
	}
	if !cfg.Force {
		t.Errorf("Force = %t, want true", cfg.Force)
	}
	if cfg.Vacuum {
		t.Errorf("Vacuum = %t, want false", cfg.Vacuum)
	}
	if len(cfg.ExcludeTables) != 1 || cfg.ExcludeTables[0] != "moz_meta" {
		t.Errorf("ExcludeTables = %v", cfg.ExcludeTables)
	}
	if len(cfg.Hooks.BeforeRewrite) != 1 || cfg.Hooks.BeforeRewrite[0] != "pre.sql" {
		t.Errorf("Hooks.BeforeRewrite = %v", cfg.Hooks.BeforeRewrite)
	}
	if cfg.configDir != dir {
		t.Errorf("configDir = %q, want %q", cfg.configDir, dir)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error: %v", err)
	}

	if cfg.Mode != ModePlaces {
		t.Errorf("default Mode = %q, want %q", cfg.Mode, ModePlaces)
	}
	if cfg.Output != defaultOutputPath {
		t.Errorf("default Output = %q, want %q", cfg.Output, defaultOutputPath)
	}
	if !cfg.Vacuum {
		t.Errorf("default Vacuum = %t, want true", cfg.Vacuum)
	}
	if cfg.Force {
		t.Errorf("default Force = %t, want false", cfg.Force)
	}

	// A file that sets nothing keeps the defaults.
	cfg, err = loadConfig(writeConfig(t, "empty.toml", "# nothing\n"))
	if err != nil {
		t.Fatalf("loadConfig(empty) error: %v", err)
	}
	if cfg.Mode != ModePlaces || cfg.Output != defaultOutputPath || !cfg.Vacuum {
		t.Errorf("empty file changed defaults: %+v", cfg)
	}
}

func TestLoadConfig_Rules(t *testing.T) {
	cfgFile := writeConfig(t, "rules.toml", `
mode = "rules"

[[rule]]
table = "moz_places"
column = "title"
treatment = "coalesce_anonymize"

[[rule]]
table = "moz_places"
column = "url_hash"
treatment = "set_constant"
value = 0

[[rule]]
table = "moz_hosts"
treatment = "delete_rows"
optional = true
`)

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	specs, err := cfg.ruleSpecs()
	if err != nil {
		t.Fatalf("ruleSpecs() error: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("len(specs) = %d, want 3", len(specs))
	}
	if specs[0].Treatment != TreatCoalesceAnonymize || specs[0].Column != "title" {
		t.Errorf("specs[0] = %+v", specs[0])
	}
	if v, ok := specs[1].Value.(int64); !ok || v != 0 {
		t.Errorf("specs[1].Value = %#v, want int64(0)", specs[1].Value)
	}
	if specs[2].Treatment != TreatDeleteRows || !specs[2].Optional {
		t.Errorf("specs[2] = %+v", specs[2])
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errLike string
	}{
		{"unknown mode", `mode = "everything"`, "mode must be one of"},
		{"unknown key", `workers = 4`, "unknown config keys: workers"},
		{"unknown treatment", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ncolumn = \"c\"\ntreatment = \"shred\"", "unknown treatment"},
		{"missing column", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ntreatment = \"anonymize\"", "column is required"},
		{"column on delete", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ncolumn = \"c\"\ntreatment = \"delete_rows\"", "does not take a column"},
		{"set_constant without value", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ncolumn = \"c\"\ntreatment = \"set_constant\"", "requires a value"},
		{"value on anonymize", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ncolumn = \"c\"\ntreatment = \"anonymize\"\nvalue = 1", "only valid for set_constant"},
		{"array value", "mode = \"rules\"\n[[rule]]\ntable = \"t\"\ncolumn = \"c\"\ntreatment = \"set_constant\"\nvalue = [1, 2]", "must be a string, number or boolean"},
		{"missing table", "mode = \"rules\"\n[[rule]]\ntreatment = \"delete_rows\"", "table is required"},
		{"bad toml", `mode = `, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, "bad.toml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errLike) {
				t.Errorf("error = %q, want it to contain %q", err, tt.errLike)
			}
		})
	}
}

func TestConfigValidate_ModeDependent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errLike string
	}{
		{"exclude outside generic", `exclude_tables = ["moz_meta"]`, "exclude_tables"},
		{"rules mode without rules", `mode = "rules"`, "requires at least one"},
		{"rules without rules mode", "[[rule]]\ntable = \"t\"\ntreatment = \"delete_rows\"", "require mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, "mode.toml", tt.content))
			if err != nil {
				t.Fatalf("loadConfig() error: %v", err)
			}
			err = cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tt.errLike) {
				t.Errorf("validate() error = %v, want it to contain %q", err, tt.errLike)
			}
		})
	}
}

func TestConfigValidate_ModeOverride(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "generic.toml", `exclude_tables = ["moz_meta"]`))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Mode != ModePlaces {
		t.Fatalf("Mode = %q, want %q before the override", cfg.Mode, ModePlaces)
	}

	cfg.Mode = ModeGeneric
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() after switching to generic: %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestResolvePath(t *testing.T) {
	cfg := &Config{configDir: "/home/user/anon"}

	got := cfg.resolvePath("cleanup.sql")
	want := "/home/user/anon/cleanup.sql"
	if got != want {
		t.Errorf("resolvePath(relative) = %q, want %q", got, want)
	}

	got = cfg.resolvePath("/absolute/path.sql")
	want = "/absolute/path.sql"
	if got != want {
		t.Errorf("resolvePath(absolute) = %q, want %q", got, want)
	}

	if got := (&Config{}).resolvePath("rel.sql"); got != "rel.sql" {
		t.Errorf("resolvePath(no config dir) = %q, want %q", got, "rel.sql")
	}
}

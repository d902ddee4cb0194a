package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadOverlaysRenderSection(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
render:
  pages_per_file: 40
  budgets:
    file: 3
  extensions:
    code: ["PY", ".Java"]
`))
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PagesPerFile != 40 {
		t.Errorf("PagesPerFile = %d, want 40", cfg.PagesPerFile)
	}
	if cfg.Budgets.File != 3 {
		t.Errorf("Budgets.File = %d, want 3", cfg.Budgets.File)
	}
	if cfg.Budgets.Default != 1 {
		t.Errorf("Budgets.Default = %d, want default 1", cfg.Budgets.Default)
	}
	if got := cfg.FamilyFor("Main.java"); got != FamilyCode {
		t.Errorf("FamilyFor(Main.java) = %q, want code", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader("render:\n  budgets:\n    default: 0\n")); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	_, err := Load(v)
	if err == nil {
		t.Fatal("expected validation error for zero budget")
	}
	if !IsValidationError(err) {
		t.Errorf("expected validator error, got %v", err)
	}
}

func TestFamilyFor(t *testing.T) {
	cfg := Default()
	tests := []struct {
		path string
		want Family
	}{
		{"answer.py", FamilyCode},
		{"README.md", FamilyMarkdown},
		{"plot.PNG", FamilyImage},
		{"notes.docx", FamilyOther},
		{"noext", FamilyOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := cfg.FamilyFor(tt.path); got != tt.want {
				t.Errorf("FamilyFor(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

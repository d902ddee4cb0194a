package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Font is a family, style and size used for one text role.
type Font struct {
	Family string  `mapstructure:"family" validate:"required"`
	Style  string  `mapstructure:"style"`
	Size   float64 `mapstructure:"size" validate:"gt=0"`
}

// Fonts assigns a font to every text role.
type Fonts struct {
	Title     Font `mapstructure:"title"`
	Header    Font `mapstructure:"header"`
	Subheader Font `mapstructure:"subheader"`
	Body      Font `mapstructure:"body"`
	Code      Font `mapstructure:"code"`
}

// Page holds page geometry in millimetres.
type Page struct {
	Size       string  `mapstructure:"size" validate:"oneof=A4 A3 A5 Letter Legal"`
	Margin     float64 `mapstructure:"margin" validate:"gte=0"`
	Width      float64 `mapstructure:"width" validate:"gte=0"` // 0 means full content width
	LineHeight float64 `mapstructure:"line_height" validate:"gt=0"`
}

// Budgets are page budgets per answer kind.
type Budgets struct {
	Default int `mapstructure:"default" validate:"min=1"`
	File    int `mapstructure:"file" validate:"min=1"`
	String  int `mapstructure:"string" validate:"min=1"`
}

// AnchorStyle backs exactly one score tier of the anchor box.
type AnchorStyle struct {
	Fill   [3]int  `mapstructure:"fill"`
	Height float64 `mapstructure:"height" validate:"gt=0"`
	Label  string  `mapstructure:"label"`
}

// Anchors holds one style per score tier.
type Anchors struct {
	Blank     AnchorStyle `mapstructure:"blank"`
	Incorrect AnchorStyle `mapstructure:"incorrect"`
	Partial   AnchorStyle `mapstructure:"partial"`
	Correct   AnchorStyle `mapstructure:"correct"`
}

// Extensions lists the file extensions recognized by each renderer family.
type Extensions struct {
	Code     []string `mapstructure:"code"`
	Markdown []string `mapstructure:"markdown"`
	Image    []string `mapstructure:"image"`
}

// Config is the rendering configuration. It is built once at startup and
// passed by value into every rendering call.
type Config struct {
	Fonts        Fonts      `mapstructure:"fonts"`
	Page         Page       `mapstructure:"page"`
	Budgets      Budgets    `mapstructure:"budgets"`
	Anchors      Anchors    `mapstructure:"anchors"`
	Extensions   Extensions `mapstructure:"extensions"`
	PagesPerFile int        `mapstructure:"pages_per_file" validate:"min=1"`
	// ChoicePrefix marks part names rendered as multiple choice.
	ChoicePrefix string `mapstructure:"choice_prefix"`
	// RequiredFilesParam is the params key naming files a question requires.
	RequiredFilesParam string `mapstructure:"required_files_param"`
}

// Default returns the built-in rendering configuration.
func Default() Config {
	return Config{
		Fonts: Fonts{
			Title:     Font{Family: "Courier", Style: "B", Size: 48},
			Header:    Font{Family: "Helvetica", Style: "B", Size: 12},
			Subheader: Font{Family: "Helvetica", Style: "B", Size: 11},
			Body:      Font{Family: "Helvetica", Size: 10},
			Code:      Font{Family: "Courier", Size: 9},
		},
		Page: Page{
			Size:       "A4",
			Margin:     10,
			LineHeight: 5,
		},
		Budgets: Budgets{Default: 1, File: 2, String: 1},
		Anchors: Anchors{
			Blank:     AnchorStyle{Fill: [3]int{255, 255, 255}, Height: 12, Label: ""},
			Incorrect: AnchorStyle{Fill: [3]int{244, 199, 195}, Height: 12, Label: "INCORRECT"},
			Partial:   AnchorStyle{Fill: [3]int{252, 232, 178}, Height: 12, Label: "PARTIAL"},
			Correct:   AnchorStyle{Fill: [3]int{183, 225, 205}, Height: 12, Label: "CORRECT"},
		},
		Extensions: Extensions{
			Code: []string{
				".py", ".java", ".c", ".h", ".cpp", ".hpp", ".cc", ".go", ".js", ".ts",
				".rb", ".rs", ".sql", ".sh", ".r", ".m", ".txt", ".json", ".csv",
			},
			Markdown: []string{".md", ".markdown"},
			Image:    []string{".png", ".jpg", ".jpeg", ".gif"},
		},
		PagesPerFile:       200,
		ChoicePrefix:       "mc",
		RequiredFilesParam: "_required_file_names",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and color ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid render config: %w", err)
	}
	for name, s := range map[string]AnchorStyle{
		"blank":     c.Anchors.Blank,
		"incorrect": c.Anchors.Incorrect,
		"partial":   c.Anchors.Partial,
		"correct":   c.Anchors.Correct,
	} {
		for _, v := range s.Fill {
			if v < 0 || v > 255 {
				return fmt.Errorf("invalid render config: anchor %s fill component %d out of range", name, v)
			}
		}
	}
	return nil
}

// Load overlays the "render" section of v onto the defaults and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil && v.IsSet("render") {
		if err := v.UnmarshalKey("render", &cfg); err != nil {
			return Config{}, fmt.Errorf("decode render config: %w", err)
		}
	}
	cfg.Extensions.Code = normalizeExts(cfg.Extensions.Code)
	cfg.Extensions.Markdown = normalizeExts(cfg.Extensions.Markdown)
	cfg.Extensions.Image = normalizeExts(cfg.Extensions.Image)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Family names the renderer family a file is dispatched to.
type Family string

const (
	FamilyCode     Family = "code"
	FamilyMarkdown Family = "markdown"
	FamilyImage    Family = "image"
	FamilyOther    Family = "other"
)

// FamilyFor returns the renderer family for a file path by extension.
func (c Config) FamilyFor(path string) Family {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case contains(c.Extensions.Markdown, ext):
		return FamilyMarkdown
	case contains(c.Extensions.Image, ext):
		return FamilyImage
	case contains(c.Extensions.Code, ext):
		return FamilyCode
	}
	return FamilyOther
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err came from struct validation.
func IsValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

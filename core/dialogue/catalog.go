package dialogue

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs/*.yaml
var builtinCatalogs embed.FS

// Choices lists the menu answers accepted while the menu is shown.
var Choices = []string{"1", "2", "3"}

// NamePlaceholder is replaced with the sender display name in the menu text.
const NamePlaceholder = "{name}"

// Catalog holds every text the bot can send.
type Catalog struct {
	FallbackName     string            `yaml:"fallback_name"`
	ExitKeyword      string            `yaml:"exit_keyword"`
	Menu             string            `yaml:"menu"`
	Options          map[string]string `yaml:"options"`
	InvalidChoice    string            `yaml:"invalid_choice"`
	Farewell         string            `yaml:"farewell"`
	InactivityNotice string            `yaml:"inactivity_notice"`
}

// Locales returns the names of the built-in catalogs.
func Locales() []string {
	entries, err := builtinCatalogs.ReadDir("catalogs")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// BuiltinCatalog returns the embedded catalog for locale.
func BuiltinCatalog(locale string) (Catalog, error) {
	data, err := builtinCatalogs.ReadFile("catalogs/" + locale + ".yaml")
	if err != nil {
		return Catalog{}, fmt.Errorf("unknown locale %q; available: %s", locale, strings.Join(Locales(), ", "))
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", locale, err)
	}
	return c, nil
}

// LoadCatalog resolves the built-in catalog for locale and overlays the non-empty
// fields of the YAML file at path, if any.
func LoadCatalog(locale, path string) (Catalog, error) {
	c, err := BuiltinCatalog(locale)
	if err != nil {
		return Catalog{}, err
	}
	if strings.TrimSpace(path) == "" {
		return c, c.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	c.merge(override)
	return c, c.Validate()
}

// Validate checks that every text is present.
func (c Catalog) Validate() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("fallback_name", c.FallbackName)
	check("exit_keyword", c.ExitKeyword)
	check("menu", c.Menu)
	check("invalid_choice", c.InvalidChoice)
	check("farewell", c.Farewell)
	check("inactivity_notice", c.InactivityNotice)
	for _, choice := range Choices {
		check("options."+choice, c.Options[choice])
	}
	for key := range c.Options {
		if !isChoice(key) {
			return fmt.Errorf("catalog: unexpected option %q", key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("catalog: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Catalog) merge(o Catalog) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&c.FallbackName, o.FallbackName)
	set(&c.ExitKeyword, o.ExitKeyword)
	set(&c.Menu, o.Menu)
	set(&c.InvalidChoice, o.InvalidChoice)
	set(&c.Farewell, o.Farewell)
	set(&c.InactivityNotice, o.InactivityNotice)
	if len(o.Options) > 0 {
		merged := make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			merged[k] = v
		}
		for k, v := range o.Options {
			merged[k] = v
		}
		c.Options = merged
	}
}

func isChoice(s string) bool {
	for _, choice := range Choices {
		if s == choice {
			return true
		}
	}
	return false
}

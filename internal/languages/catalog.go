// Package languages holds the catalog of language codes the service accepts.
package languages

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultCatalog []byte

// ErrUnsupported is returned for a language code missing from the catalog.
var ErrUnsupported = errors.New("unsupported language")

type Language struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

type document struct {
	Default   string     `yaml:"default"`
	Languages []Language `yaml:"languages"`
}

// Catalog is immutable after Load.
type Catalog struct {
	def    string
	order  []Language
	byCode map[string]Language
}

// Load parses the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read language catalog %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// MustDefault returns the embedded catalog and panics if it is malformed.
func MustDefault() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse language catalog: %w", err)
	}
	if len(doc.Languages) == 0 {
		return nil, errors.New("language catalog is empty")
	}

	c := &Catalog{byCode: make(map[string]Language, len(doc.Languages))}
	for _, l := range doc.Languages {
		key := normalize(l.Code)
		if key == "" {
			return nil, errors.New("language catalog entry without code")
		}
		if _, dup := c.byCode[key]; dup {
			return nil, fmt.Errorf("duplicate language code %s", l.Code)
		}
		c.byCode[key] = l
		c.order = append(c.order, l)
	}

	def, ok := c.byCode[normalize(doc.Default)]
	if !ok {
		return nil, fmt.Errorf("default language %q is not in the catalog", doc.Default)
	}
	c.def = def.Code
	return c, nil
}

// Default is the code used when a request names no language.
func (c *Catalog) Default() string {
	return c.def
}

// All returns the languages in catalog order.
func (c *Catalog) All() []Language {
	return append([]Language(nil), c.order...)
}

func (c *Catalog) Supported(code string) bool {
	_, ok := c.byCode[normalize(code)]
	return ok
}

// Resolve maps a requested code to its canonical spelling; empty means Default.
func (c *Catalog) Resolve(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return c.def, nil
	}
	l, ok := c.byCode[normalize(code)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, code)
	}
	return l.Code, nil
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

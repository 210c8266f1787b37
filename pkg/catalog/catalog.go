// Package catalog holds the static insurance package table and the
// label to package eligibility lookup.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go-kart-insurance/pkg/models"

	"gopkg.in/yaml.v3"
)

//go:embed packages.yaml
var defaultCatalog []byte

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	packages []models.Package
	byID     map[string]int
}

type catalogFile struct {
	Packages []models.Package `yaml:"packages"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a YAML catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Packages)
}

// New validates packages and builds a catalog preserving their order.
func New(packages []models.Package) (*Catalog, error) {
	c := &Catalog{
		packages: make([]models.Package, 0, len(packages)),
		byID:     make(map[string]int, len(packages)),
	}
	for i, p := range packages {
		p.ID = strings.TrimSpace(p.ID)
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("package %d: id is required", i)
		case strings.TrimSpace(p.Name) == "":
			return nil, fmt.Errorf("package %q: name is required", p.ID)
		case p.MonthlyPrice < 0 || p.YearlyPrice < 0:
			return nil, fmt.Errorf("package %q: prices must not be negative", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("package %q: duplicate id", p.ID)
		}
		c.byID[p.ID] = len(c.packages)
		c.packages = append(c.packages, clonePackage(p))
	}
	return c, nil
}

// All returns every package in catalog order.
func (c *Catalog) All() []models.Package {
	out := make([]models.Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, clonePackage(p))
	}
	return out
}

// Get returns the package with the given id.
func (c *Catalog) Get(id string) (models.Package, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Package{}, false
	}
	return clonePackage(c.packages[i]), true
}

// Recommend returns the packages whose eligibility list contains label,
// in catalog order. The result is never nil.
func (c *Catalog) Recommend(label string) []models.Package {
	out := []models.Package{}
	for _, p := range c.packages {
		for _, eligible := range p.BestFor {
			if eligible == label {
				out = append(out, clonePackage(p))
				break
			}
		}
	}
	return out
}

// Labels returns every distinct label named by an eligibility list.
func (c *Catalog) Labels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.packages {
		for _, l := range p.BestFor {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

// DisplayLabel turns a class label into its human readable form.
func DisplayLabel(label string) string {
	return strings.ReplaceAll(label, "_", " ")
}

func clonePackage(p models.Package) models.Package {
	p.Coverage = append([]string(nil), p.Coverage...)
	p.BestFor = append([]string(nil), p.BestFor...)
	return p
}

// Package catalog maps human-readable series names to fetch descriptors.
//
// Catalogs are YAML files with one entry per logical name. Several files can
// be merged into one catalog; the same name appearing twice is an error.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NameNotFoundError reports a logical name with no catalog mapping.
type NameNotFoundError struct {
	Name string
}

func (e *NameNotFoundError) Error() string {
	return fmt.Sprintf("name not found in catalog: %q", e.Name)
}

// DuplicateNameError reports the same logical name declared twice.
type DuplicateNameError struct {
	Name string
	File string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate catalog name %q in %s", e.Name, e.File)
}

// Entry is one catalog row: a logical name plus everything needed to fetch
// and describe the series.
type Entry struct {
	Name        string    `yaml:"name"`
	Source      string    `yaml:"source"`
	Symbol      string    `yaml:"symbol"`
	Field       *string   `yaml:"field"`
	Path        *string   `yaml:"path"`
	Params      paramList `yaml:"params"`
	Frequency   string    `yaml:"frequency"`
	Description string    `yaml:"description"`
	Unit        string    `yaml:"unit"`
}

// paramList decodes a YAML mapping while preserving declaration order.
type paramList []Param

func (p *paramList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("params must be a mapping, got %s", node.Tag)
	}
	out := make(paramList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Param{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	*p = out
	return nil
}

// Descriptor builds the fetch descriptor for the entry.
func (e Entry) Descriptor() Descriptor {
	d := Descriptor{Source: e.Source, Symbol: e.Symbol, Field: e.Field, Path: e.Path}
	if e.Params != nil {
		d.Params = append([]Param(nil), e.Params...)
	}
	return d
}

type catalogFile struct {
	Entries []Entry `yaml:"entries"`
}

// Catalog is the merged, validated set of entries.
type Catalog struct {
	entries map[string]Entry
	names   []string
}

// Load reads and merges one or more YAML catalog files.
func Load(paths ...string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry)}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		for _, e := range file.Entries {
			if e.Name == "" || e.Source == "" || e.Symbol == "" {
				return nil, fmt.Errorf("catalog %s: entry needs name, source and symbol (got name=%q source=%q symbol=%q)",
					path, e.Name, e.Source, e.Symbol)
			}
			if _, dup := c.entries[e.Name]; dup {
				return nil, &DuplicateNameError{Name: e.Name, File: path}
			}
			c.entries[e.Name] = e
			c.names = append(c.names, e.Name)
		}
	}
	return c, nil
}

// FromEntries builds a catalog directly, mainly for tests and embedding.
func FromEntries(entries []Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.Name]; dup {
			return nil, &DuplicateNameError{Name: e.Name}
		}
		c.entries[e.Name] = e
		c.names = append(c.names, e.Name)
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.names) }

// Names lists the entry names in declaration order.
func (c *Catalog) Names() []string { return append([]string(nil), c.names...) }

// Entry returns the full entry for a name.
func (c *Catalog) Entry(name string) (Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, &NameNotFoundError{Name: name}
	}
	return e, nil
}

// Resolve maps one logical name to its descriptor.
func (c *Catalog) Resolve(name string) (Descriptor, error) {
	e, err := c.Entry(name)
	if err != nil {
		return Descriptor{}, err
	}
	return e.Descriptor(), nil
}

// ResolveMany maps names in order, failing on the first unknown name.
func (c *Catalog) ResolveMany(names []string) ([]Resolved, error) {
	out := make([]Resolved, 0, len(names))
	for _, n := range names {
		d, err := c.Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, Resolved{Name: n, Descriptor: d})
	}
	return out, nil
}

// ValidateSources checks every entry's source against a registry.
func (c *Catalog) ValidateSources(has func(string) bool) error {
	for _, n := range c.names {
		if src := c.entries[n].Source; !has(src) {
			return fmt.Errorf("catalog entry %q references unregistered source %q", n, src)
		}
	}
	return nil
}

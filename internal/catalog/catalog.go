// Package catalog holds the static reference data for the supported drugs.
// A Catalog never changes after it is built, so it can be shared freely.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pharmaguard-wizard/internal/domain"
)

//go:embed drugs.yaml
var defaultCatalog []byte

// GeneSeparator joins a drug's genes for display
const GeneSeparator = " · "

// Profile is a reference genotype/phenotype pairing for a drug
type Profile struct {
	Diplotype      string              `yaml:"diplotype" json:"diplotype"`
	Phenotype      string              `yaml:"phenotype" json:"phenotype"`
	Risk           domain.RiskCategory `yaml:"risk" json:"risk"`
	Label          string              `yaml:"label" json:"label"`
	Recommendation string              `yaml:"recommendation" json:"recommendation"`
	Activity       string              `yaml:"activity" json:"activity"`
	CPIC           string              `yaml:"cpic" json:"cpic"`
	Note           string              `yaml:"note" json:"note"`
}

// Entry describes one drug
type Entry struct {
	Drug     domain.Drug `yaml:"drug" json:"drug"`
	Class    string      `yaml:"class" json:"class"`
	Genes    []string    `yaml:"genes" json:"genes"`
	Profiles []Profile   `yaml:"profiles" json:"profiles"`
}

// Gene is the display form of the entry's genes
func (e Entry) Gene() string {
	return strings.Join(e.Genes, GeneSeparator)
}

func (e Entry) clone() Entry {
	e.Genes = append([]string(nil), e.Genes...)
	e.Profiles = append([]Profile(nil), e.Profiles...)
	return e
}

type document struct {
	Drugs []Entry `yaml:"drugs"`
}

// Catalog is an immutable, ordered set of drug entries
type Catalog struct {
	order   []domain.Drug
	entries map[domain.Drug]Entry
}

// Default returns the built-in catalog of the six supported drugs
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in drug catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog document from path. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from a YAML document
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(doc.Drugs)
}

// New validates entries and builds a catalog from them
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog has no drugs")
	}

	c := &Catalog{entries: make(map[domain.Drug]Entry, len(entries))}
	for i, e := range entries {
		e = e.clone()
		drug, err := domain.ParseDrug(string(e.Drug))
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, dup := c.entries[drug]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate drug %s", i, drug)
		}
		for j, p := range e.Profiles {
			risk, err := domain.ParseRiskCategory(string(p.Risk))
			if err != nil {
				return nil, fmt.Errorf("catalog entry %s profile %d: %w", drug, j, err)
			}
			e.Profiles[j].Risk = risk
		}
		e.Drug = drug
		c.order = append(c.order, drug)
		c.entries[drug] = e
	}
	return c, nil
}

// Drugs lists the catalog's drugs in catalog order
func (c *Catalog) Drugs() []domain.Drug {
	return append([]domain.Drug(nil), c.order...)
}

// Entries lists every entry in catalog order
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, d := range c.order {
		out = append(out, c.entries[d].clone())
	}
	return out
}

// Lookup returns the entry for drug
func (c *Catalog) Lookup(drug domain.Drug) (Entry, bool) {
	e, ok := c.entries[drug]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Contains reports whether drug is in the catalog
func (c *Catalog) Contains(drug domain.Drug) bool {
	_, ok := c.entries[drug]
	return ok
}

// Class returns the drug class, or "Unknown" for drugs outside the catalog
func (c *Catalog) Class(drug domain.Drug) string {
	if e, ok := c.entries[drug]; ok {
		return e.Class
	}
	return domain.FallbackUnknown
}

// Gene returns the display gene string, or "Unknown" for drugs outside the catalog
func (c *Catalog) Gene(drug domain.Drug) string {
	if e, ok := c.entries[drug]; ok {
		return e.Gene()
	}
	return domain.FallbackUnknown
}

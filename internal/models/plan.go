package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a purchasable programme with a fixed list price in whole rupees.
type Plan struct {
	Name string `yaml:"name" json:"name"`
	MRP  int64  `yaml:"mrp" json:"mrp"`
}

// Catalog holds the plans offered to scholarship candidates.
type Catalog struct {
	DefaultPlan string `yaml:"default_plan" json:"defaultPlan"`
	Plans       []Plan `yaml:"plans" json:"plans"`
}

// DefaultCatalog is used when no plans file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		DefaultPlan: "Foundation",
		Plans: []Plan{
			{Name: "Foundation", MRP: 120000},
			{Name: "Accelerator", MRP: 180000},
		},
	}
}

// LoadCatalog reads and parses the plans YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plans YAML: %w", err)
	}
	if len(catalog.Plans) == 0 {
		return nil, fmt.Errorf("plans file %s defines no plans", path)
	}
	if catalog.DefaultPlan == "" {
		catalog.DefaultPlan = catalog.Plans[0].Name
	}
	return &catalog, nil
}

// Lookup finds a plan by case-insensitive name. Unknown names resolve to the
// default plan.
func (c *Catalog) Lookup(name string) Plan {
	for _, p := range c.Plans {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p
		}
	}
	for _, p := range c.Plans {
		if p.Name == c.DefaultPlan {
			return p
		}
	}
	return c.Plans[0]
}

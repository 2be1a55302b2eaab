// Package tiers holds the subscription tier catalog.
// The catalog is reference data: it is loaded once at start and never mutated.
package tiers

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/aloewind/exportremix-sub001/app/models"

	"gopkg.in/yaml.v3"
)

// Unlimited marks an allowance with no monthly cap.
const Unlimited = -1

//go:embed tiers.yaml
var defaultCatalog []byte

type Features struct {
	AdvancedPredictions bool `yaml:"advancedPredictions" json:"advancedPredictions"`
	PrioritySupport     bool `yaml:"prioritySupport" json:"prioritySupport"`
	CustomAPIs          bool `yaml:"customAPIs" json:"customAPIs"`
	TeamCollaboration   bool `yaml:"teamCollaboration" json:"teamCollaboration"`
}

type Tier struct {
	ID              models.TierID             `yaml:"id" json:"id"`
	Name            string                    `yaml:"name" json:"name"`
	MonthlyRequests int                       `yaml:"monthlyRequests" json:"monthlyRequests"`
	Actions         map[models.ActionType]int `yaml:"actions" json:"actions,omitempty"`
	Features        Features                  `yaml:"features" json:"features"`
}

// Allowance is the monthly cap of one action type for a tier.
type Allowance struct {
	Limit     int
	Unlimited bool
}

// Allowance returns the cap for action, preferring a per-action override.
func (t Tier) Allowance(action models.ActionType) Allowance {
	limit := t.MonthlyRequests
	if override, ok := t.Actions[action]; ok {
		limit = override
	}
	if limit == Unlimited {
		return Allowance{Unlimited: true}
	}
	return Allowance{Limit: limit}
}

type Catalog struct {
	tiers map[models.TierID]Tier
	order []models.TierID
}

type catalogFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// Load reads a catalog from path. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tier catalog: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tier catalog: %w", err)
	}

	c := &Catalog{tiers: make(map[models.TierID]Tier, len(f.Tiers))}
	for _, t := range f.Tiers {
		if t.ID == "" {
			return nil, errors.New("tier catalog: tier without id")
		}
		if _, dup := c.tiers[t.ID]; dup {
			return nil, fmt.Errorf("tier catalog: duplicate tier %q", t.ID)
		}
		if t.MonthlyRequests < Unlimited {
			return nil, fmt.Errorf("tier catalog: %s: monthlyRequests must be >= -1", t.ID)
		}
		for action, limit := range t.Actions {
			if !action.Valid() {
				return nil, fmt.Errorf("tier catalog: %s: unknown action %q", t.ID, action)
			}
			if limit < Unlimited {
				return nil, fmt.Errorf("tier catalog: %s: %s limit must be >= -1", t.ID, action)
			}
		}
		c.tiers[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	if _, ok := c.tiers[models.TierFree]; !ok {
		return nil, errors.New("tier catalog: free tier is required")
	}
	return c, nil
}

// Get returns a tier by id.
func (c *Catalog) Get(id models.TierID) (Tier, bool) {
	t, ok := c.tiers[id]
	return t, ok
}

// Free returns the most restrictive default tier.
func (c *Catalog) Free() Tier {
	return c.tiers[models.TierFree]
}

// All returns the tiers in catalog order.
func (c *Catalog) All() []Tier {
	out := make([]Tier, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tiers[id])
	}
	return out
}

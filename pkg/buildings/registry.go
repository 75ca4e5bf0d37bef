// Package buildings provides the registry that maps internal building IDs to
// the identifiers regulatory sources are keyed by: BIN for DOB, BBL for HPD
// and LL97, community district for DSNY collection schedules.
package buildings

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
)

// Building holds the identifiers a single building is known by across the
// regulatory sources.
type Building struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Address  string `yaml:"address" json:"address"`
	Borough  string `yaml:"borough" json:"borough"`
	BIN      string `yaml:"bin" json:"bin"`           // DOB Building Identification Number
	BBL      string `yaml:"bbl" json:"bbl"`           // borough-block-lot
	District string `yaml:"district" json:"district"` // DSNY community district, e.g. "MN05"
	Units    int    `yaml:"units,omitempty" json:"units,omitempty"`
}

// Registry resolves building IDs to source identifiers.
type Registry interface {
	// Resolve returns the building for the given ID, or a
	// *model.BuildingNotFoundError when no mapping exists.
	Resolve(buildingID string) (Building, error)

	// List returns all registered buildings in stable ID order.
	List() []Building
}

// StaticRegistry is an in-memory Registry backed by a fixed portfolio.
type StaticRegistry struct {
	mu   sync.RWMutex
	byID map[string]Building
}

// NewStaticRegistry creates a registry from the given buildings.
func NewStaticRegistry(bs ...Building) *StaticRegistry {
	r := &StaticRegistry{byID: make(map[string]Building, len(bs))}
	for _, b := range bs {
		r.byID[b.ID] = b
	}
	return r
}

// Resolve implements Registry.
func (r *StaticRegistry) Resolve(buildingID string) (Building, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[buildingID]
	if !ok {
		return Building{}, &model.BuildingNotFoundError{BuildingID: buildingID}
	}
	return b, nil
}

// List implements Registry.
func (r *StaticRegistry) List() []Building {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Building, 0, len(r.byID))
	for _, b := range r.byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add registers or replaces a building.
func (r *StaticRegistry) Add(b Building) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
}

type portfolioFile struct {
	Buildings []Building `yaml:"buildings"`
}

// LoadPortfolio loads a YAML portfolio file into a StaticRegistry.
func LoadPortfolio(path string) (*StaticRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load portfolio %q: %w", path, err)
	}

	var pf portfolioFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse portfolio %q: %w", path, err)
	}

	for i, b := range pf.Buildings {
		if b.ID == "" {
			return nil, fmt.Errorf("portfolio %q: building %d has no id", path, i)
		}
	}
	return NewStaticRegistry(pf.Buildings...), nil
}

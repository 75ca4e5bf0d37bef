package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/buildingcompliance/pkg/compliance/model"
	"github.com/opsforge/buildingcompliance/pkg/compliance/scoring"
)

// Profile is an optional YAML tuning profile overriding the built-in scoring
// tables and cache lifetimes. Omitted sections keep their defaults.
type Profile struct {
	Name      string          `yaml:"name"`
	Scoring   *scoring.Config `yaml:"scoring,omitempty"`
	CacheTTLs map[string]int  `yaml:"cache_ttl_hours,omitempty"` // category -> hours
}

// LoadProfile loads a tuning profile YAML.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return &profile, nil
}

// TTLs converts the profile's hour table to per-category durations, or nil
// when the profile does not override cache lifetimes.
func (p *Profile) TTLs() map[model.Category]time.Duration {
	if len(p.CacheTTLs) == 0 {
		return nil
	}
	ttls := make(map[model.Category]time.Duration, len(p.CacheTTLs))
	for category, hours := range p.CacheTTLs {
		ttls[model.Category(category)] = time.Duration(hours) * time.Hour
	}
	return ttls
}

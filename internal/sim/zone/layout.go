package zone

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout is the on-disk map description (map.yaml).
type Layout struct {
	Name  string       `yaml:"name"`
	Zones []LayoutZone `yaml:"zones"`
}

type LayoutZone struct {
	ID       int     `yaml:"id"`
	Name     string  `yaml:"name"`
	Owner    *uint16 `yaml:"owner"`
	Dark     bool    `yaml:"dark"`
	Adjacent []int   `yaml:"adjacent"`
}

func LoadLayout(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	return ParseLayout(raw)
}

func ParseLayout(raw []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("map.yaml: %w", err)
	}
	if len(l.Zones) == 0 {
		return l, fmt.Errorf("map.yaml: no zones")
	}
	return l, nil
}

// Build turns the layout into a fresh graph with no occupants.
func (l Layout) Build() (*Graph, error) {
	defs := make([]Zone, 0, len(l.Zones))
	for _, lz := range l.Zones {
		z := Zone{ID: ZoneID(lz.ID), Name: lz.Name, Dark: lz.Dark}
		if lz.Owner != nil {
			z.Owner = TeamOwner(TeamID(*lz.Owner))
		}
		for _, a := range lz.Adjacent {
			z.Adjacent = append(z.Adjacent, ZoneID(a))
		}
		defs = append(defs, z)
	}
	g, err := New(defs)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", l.Name, err)
	}
	return g, nil
}

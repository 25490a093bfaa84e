package protein

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads a YAML (or JSON) list of project metadata. Later entries
// replace earlier ones with the same project ID.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protein catalog: %w", err)
	}
	var items []Metadata
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode protein catalog %s: %w", path, err)
	}
	for i, m := range items {
		if m.ProjectID <= 0 {
			return nil, fmt.Errorf("protein catalog %s: entry %d has no project_id", path, i)
		}
	}
	return NewCatalog(items...), nil
}

package templates

import (
	_ "embed"
	"fmt"

	"github.com/framefold/canvas/common/models"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var catalogYAML []byte

// Catalog holds the static node-template set. Templates describe the shape of
// each node type (handles, transience, terminality) and ship with the engine;
// node types only register at process start.
type Catalog struct {
	byType map[models.NodeType]*models.NodeTemplate
	all    []*models.NodeTemplate
}

type catalogFile struct {
	Templates []*models.NodeTemplate `yaml:"templates"`
}

// NewCatalog parses and validates the embedded template catalog
func NewCatalog() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogYAML, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	c := &Catalog{
		byType: make(map[models.NodeType]*models.NodeTemplate, len(file.Templates)),
		all:    file.Templates,
	}

	for _, tpl := range file.Templates {
		if tpl.Type == "" {
			return nil, fmt.Errorf("template catalog entry missing type")
		}
		if _, dup := c.byType[tpl.Type]; dup {
			return nil, fmt.Errorf("duplicate template type: %s", tpl.Type)
		}
		for _, h := range tpl.Handles {
			if h.Type != models.HandleInput && h.Type != models.HandleOutput {
				return nil, fmt.Errorf("template %s: invalid handle type %q", tpl.Type, h.Type)
			}
			if len(h.DataTypes) == 0 {
				return nil, fmt.Errorf("template %s: handle %q has no data types", tpl.Type, h.Label)
			}
		}
		c.byType[tpl.Type] = tpl
	}

	return c, nil
}

// ByType returns the template for a node type
func (c *Catalog) ByType(t models.NodeType) (*models.NodeTemplate, bool) {
	tpl, ok := c.byType[t]
	return tpl, ok
}

// All returns every registered template
func (c *Catalog) All() []*models.NodeTemplate {
	return c.all
}

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/btree"

	"gridsql/core"
)

// Table describes one registered table on a node: the parquet locations
// holding this node's partition of the data. Locations may be local paths
// or http(s) URLs.
type Table struct {
	Name      string   `json:"name"`
	Locations []string `json:"locations"`
}

// Catalog is a node-local registry mapping table names to data locations.
// It is backed by an ordered map so listings are sorted and deterministic.
type Catalog struct {
	mutex  sync.RWMutex
	tables btree.Map[string, *Table]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Register adds or replaces a table under its name.
func (c *Catalog) Register(name string, locations ...string) error {
	if len(locations) == 0 {
		return fmt.Errorf("table %s needs at least one location", name)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.tables.Set(name, &Table{Name: name, Locations: locations})
	core.GetTracer().Debug(core.TraceComponentCatalog, "Table registered", core.TraceContext(
		"table", name,
		"locations", len(locations),
	))
	return nil
}

// Lookup resolves a table by name.
func (c *Catalog) Lookup(name string) (*Table, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	table, exists := c.tables.Get(name)
	if !exists {
		return nil, fmt.Errorf("table %s is not registered", name)
	}
	return table, nil
}

// Tables returns all registered tables in name order.
func (c *Catalog) Tables() []*Table {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	tables := make([]*Table, 0, c.tables.Len())
	c.tables.Scan(func(_ string, table *Table) bool {
		tables = append(tables, table)
		return true
	})
	return tables
}

// LoadMappings registers tables from a JSON file of the form
// {"table_name": ["path1", "path2"], ...}. Workers use it to pick up their
// partition layout at startup.
func (c *Catalog) LoadMappings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read table mappings: %w", err)
	}

	var mappings map[string][]string
	if err := json.Unmarshal(data, &mappings); err != nil {
		return fmt.Errorf("failed to parse table mappings %s: %w", path, err)
	}

	for name, locations := range mappings {
		if err := c.Register(name, locations...); err != nil {
			return err
		}
	}
	return nil
}

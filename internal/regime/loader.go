package regime

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables/*.yaml
var builtinTables embed.FS

// Registry holds all available regime tables
type Registry struct {
	tables map[string]*Table
}

// NewRegistry creates a new regime table registry
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*Table),
	}
}

// NewBuiltinRegistry returns a registry preloaded with the embedded tables
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFromEmbedded(builtinTables, "tables"); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse decodes a YAML regime table. Regimes the document omits
// fall back to the default table.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse regime YAML: %w", err)
	}
	if table.Name == "" {
		return nil, fmt.Errorf("regime table has no name")
	}

	defaults := DefaultTable()
	if table.Regimes == nil {
		table.Regimes = make(map[Regime]*Profile)
	}
	for _, r := range All {
		if table.Regimes[r] == nil {
			table.Regimes[r] = defaults.Regimes[r]
		}
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadFile reads a single regime table from disk
func LoadFile(file string) (*Table, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read regime file: %w", err)
	}
	return Parse(data)
}

// LoadFromFile loads a table from a YAML file into the registry
func (r *Registry) LoadFromFile(file string) error {
	table, err := LoadFile(file)
	if err != nil {
		return err
	}
	r.tables[table.Name] = table
	return nil
}

// LoadFromDir loads all tables from a directory
func (r *Registry) LoadFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read regimes directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		file := filepath.Join(dir, entry.Name())
		if err := r.LoadFromFile(file); err != nil {
			return fmt.Errorf("failed to load regime table from %s: %w", file, err)
		}
	}

	return nil
}

// LoadFromEmbedded loads tables from an embedded filesystem
func (r *Registry) LoadFromEmbedded(fsys fs.ReadDirFS, dir string) error {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read embedded regime tables: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		file := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("failed to read embedded file %s: %w", file, err)
		}

		table, err := Parse(data)
		if err != nil {
			return fmt.Errorf("failed to load regime table from %s: %w", file, err)
		}
		r.tables[table.Name] = table
	}

	return nil
}

// Get retrieves a table by name
func (r *Registry) Get(name string) (*Table, error) {
	table, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("regime table '%s' not found", name)
	}
	return table, nil
}

// List returns all table names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListWithDescriptions returns all tables with their descriptions
func (r *Registry) ListWithDescriptions() map[string]string {
	result := make(map[string]string)
	for name, table := range r.tables {
		result[name] = table.Description
	}
	return result
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

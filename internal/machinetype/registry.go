package machinetype

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry resolves a machine's type string to its register layout. The
// built-in salt and powder descriptors are always present; files found in
// the search paths add new types or replace built-ins of the same name.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	validator   *Validator
	searchPaths []string
	logger      *zap.Logger
}

func NewRegistry(searchPaths []string, logger *zap.Logger) (*Registry, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	r := &Registry{
		validator:   validator,
		searchPaths: searchPaths,
		logger:      logger.Named("machinetype"),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Reload rebuilds the registry from the built-ins and the search paths,
// replacing everything loaded before, including descriptors added with
// Register. Missing directories are skipped; an invalid file fails the
// whole reload and leaves the registry unchanged.
func (r *Registry) Reload() error {
	loaded := make(map[string]*Descriptor)
	for _, d := range []*Descriptor{Salt(), Powder()} {
		loaded[d.Type] = d
	}

	for _, searchPath := range r.searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", searchPath, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext != ".json" && ext != ".yaml" && ext != ".yml" {
				continue
			}

			fullPath := filepath.Join(searchPath, entry.Name())
			d, err := r.loadFile(fullPath)
			if err != nil {
				return err
			}
			loaded[d.Type] = d
			r.logger.Info("Loaded machine type",
				zap.String("type", d.Type),
				zap.String("path", fullPath))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = loaded
	return nil
}

func (r *Registry) loadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	return r.Parse(data)
}

// Parse validates a JSON descriptor against the schema and the block
// bounds check.
func (r *Registry) Parse(data []byte) (*Descriptor, error) {
	if err := r.validator.ValidateJSON(data); err != nil {
		return nil, err
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptor: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Register adds or replaces a descriptor at runtime.
func (r *Registry) Register(d *Descriptor) error {
	if err := r.validator.ValidateDescriptor(d); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Type] = d
	return nil
}

func (r *Registry) Lookup(machineType string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[machineType]
	return d, ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

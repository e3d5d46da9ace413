// Package registry reads the canister registry (canister_ids.json) that maps
// logical canister names to their deployed identifiers per network.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ErrInvalidRegistry is returned when the registry does not have the
// expected shape.
var ErrInvalidRegistry = errors.New("invalid canister registry")

// Entry is one canister of the registry
type Entry struct {
	Name string
	// IDs maps network name to canister identifier. Nil when the registry
	// value was a plain string.
	IDs map[string]string
	// Raw holds a plain-string registry value.
	Raw string
}

// ProductionID returns the identifier deployed on network, if any.
func (e Entry) ProductionID(network string) (string, bool) {
	id, ok := e.IDs[network]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Registry is the parsed registry, ordered by name
type Registry struct {
	Entries []Entry
}

// Load reads and validates the registry at path on fsys.
func Load(fsys billy.Filesystem, path string) (*Registry, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("registry %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse validates data against the registry schema and decodes it.
func Parse(data []byte) (*Registry, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	reg := &Registry{Entries: make([]Entry, 0, len(raw))}
	for name, value := range raw {
		entry := Entry{Name: name}

		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			entry.Raw = s
		} else if err := json.Unmarshal(value, &entry.IDs); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidRegistry, name, err)
		}

		reg.Entries = append(reg.Entries, entry)
	}

	sort.Slice(reg.Entries, func(i, j int) bool {
		return reg.Entries[i].Name < reg.Entries[j].Name
	})

	return reg, nil
}

// Names returns the entry names in registry order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		names = append(names, e.Name)
	}
	return names
}

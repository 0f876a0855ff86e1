package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maauso/mediagen-api/internal/media"
)

// ErrInvalidDocument is returned when the registry document cannot be used.
var ErrInvalidDocument = errors.New("registry: invalid document")

// document is the on-disk registry format. JSON documents parse too,
// since JSON is a subset of YAML.
type document struct {
	Services map[string]serviceEntry `yaml:"services"`
}

type serviceEntry struct {
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
}

// LoadFile reads and parses the registry document at path.
func LoadFile(path string) (map[string]Service, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a registry document.
func Parse(data []byte) (map[string]Service, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	services := make(map[string]Service, len(doc.Services))
	for id, entry := range doc.Services {
		if strings.TrimSpace(entry.URL) == "" {
			return nil, fmt.Errorf("%w: service %q has no url", ErrInvalidDocument, id)
		}

		kind := media.Kind(strings.ToLower(strings.TrimSpace(entry.Kind)))
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: service %q has unknown kind %q", ErrInvalidDocument, id, entry.Kind)
		}

		name := entry.Name
		if name == "" {
			name = id
		}

		services[id] = Service{
			ID:          id,
			EndpointURL: strings.TrimSpace(entry.URL),
			Kind:        kind,
			DisplayName: name,
		}
	}
	return services, nil
}

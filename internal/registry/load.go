package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/topic-leads/internal/model"
)

//go:embed sources.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when any descriptor in a catalog is malformed.
var ErrInvalidCatalog = eris.New("registry: invalid catalog")

type catalogFile struct {
	Pillars []pillarGroup `yaml:"pillars"`
}

type pillarGroup struct {
	Name    string                   `yaml:"name"`
	Sources []model.SourceDescriptor `yaml:"sources"`
}

// Default returns the embedded source catalog.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// Load reads and validates a YAML catalog from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog")
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog. A descriptor inherits its
// group's pillar unless it names one itself.
func Parse(data []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: decode catalog")
	}

	var sources []model.SourceDescriptor
	for _, g := range f.Pillars {
		for _, s := range g.Sources {
			if s.Pillar == "" {
				s.Pillar = g.Name
			}
			sources = append(sources, s)
		}
	}

	if err := validate(sources); err != nil {
		return nil, err
	}
	return newRegistry(sources), nil
}

// New builds a registry from descriptors, applying the same validation as
// Parse.
func New(sources []model.SourceDescriptor) (*Registry, error) {
	if err := validate(sources); err != nil {
		return nil, err
	}
	return newRegistry(clones(sources)), nil
}

func clones(in []model.SourceDescriptor) []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, len(in))
	for i, s := range in {
		out[i] = clone(s)
	}
	return out
}

func validate(sources []model.SourceDescriptor) error {
	if len(sources) == 0 {
		return eris.Wrap(ErrInvalidCatalog, "catalog has no sources")
	}

	v := validator.New()
	seen := make(map[string]bool, len(sources))
	var problems []string

	for i, s := range sources {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if err := v.Struct(s); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					problems = append(problems, fmt.Sprintf("%s: %s failed %q", label, fe.Namespace(), fe.Tag()))
				}
			} else {
				problems = append(problems, fmt.Sprintf("%s: %v", label, err))
			}
		}

		if s.Name != "" {
			if seen[s.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate source name", label))
			}
			seen[s.Name] = true
		}

		if s.Kind == model.SourceKindDiscussion {
			if s.Provider == "" {
				problems = append(problems, fmt.Sprintf("%s: discussion source needs a provider", label))
			}
			if len(s.Channels) == 0 {
				problems = append(problems, fmt.Sprintf("%s: discussion source needs at least one channel", label))
			}
		}
	}

	if len(problems) > 0 {
		return eris.Wrap(ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return nil
}

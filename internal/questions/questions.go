package questions

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind selects both the input shape and the validation rule of a question.
type Kind string

const (
	KindText      Kind = "text"
	KindNumber    Kind = "number"
	KindRadio     Kind = "radio"
	KindTextarea  Kind = "textarea"
	KindFileMulti Kind = "file"
)

type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

type FileConstraints struct {
	Accept   string `json:"accept" yaml:"accept"`
	Multiple bool   `json:"multiple" yaml:"multiple"`
}

// Descriptor describes one wizard step. Every descriptor is required.
type Descriptor struct {
	ID       string           `json:"id" yaml:"id"`
	Label    string           `json:"label" yaml:"label"`
	Kind     Kind             `json:"kind" yaml:"kind"`
	Options  []Option         `json:"options,omitempty" yaml:"options,omitempty"`
	HelpText string           `json:"help_text,omitempty" yaml:"helpText,omitempty"`
	Files    *FileConstraints `json:"files,omitempty" yaml:"files,omitempty"`
}

// Schema is the ordered, immutable list of wizard questions.
type Schema struct {
	questions []Descriptor
}

type schemaFile struct {
	Questions []Descriptor `yaml:"questions"`
}

// New validates and wraps the given descriptors.
func New(descriptors []Descriptor) (*Schema, error) {
	if len(descriptors) == 0 {
		return nil, errors.New("schema needs at least one question")
	}
	seen := make(map[string]struct{}, len(descriptors))
	copied := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("question %d: id is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("question %s: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}
		switch d.Kind {
		case KindText, KindNumber, KindTextarea:
		case KindRadio:
			if len(d.Options) == 0 {
				return nil, fmt.Errorf("question %s: radio needs options", d.ID)
			}
		case KindFileMulti:
			if d.Files == nil {
				d.Files = &FileConstraints{Accept: "*/*", Multiple: true}
			}
		default:
			return nil, fmt.Errorf("question %s: unknown kind %q", d.ID, d.Kind)
		}
		d.Options = append([]Option(nil), d.Options...)
		if d.Files != nil {
			fc := *d.Files
			d.Files = &fc
		}
		copied[i] = d
	}
	return &Schema{questions: copied}, nil
}

// Load reads a YAML schema file. An empty path yields the default book-sale schema.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}
	var parsed schemaFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return New(parsed.Questions)
}

// MarshalYAML renders the schema in the same layout Load accepts.
func (s *Schema) MarshalYAML() (interface{}, error) {
	return schemaFile{Questions: s.All()}, nil
}

func (s *Schema) Len() int {
	return len(s.questions)
}

// At returns the descriptor at index i.
func (s *Schema) At(i int) Descriptor {
	return s.questions[i]
}

// All returns a copy of the descriptors in order.
func (s *Schema) All() []Descriptor {
	out := make([]Descriptor, len(s.questions))
	copy(out, s.questions)
	return out
}

// FileSteps lists the indices of FileMulti questions.
func (s *Schema) FileSteps() []int {
	var idx []int
	for i, q := range s.questions {
		if q.Kind == KindFileMulti {
			idx = append(idx, i)
		}
	}
	return idx
}

// HasOption reports whether value is one of the descriptor's radio options.
func (d Descriptor) HasOption(value string) bool {
	for _, opt := range d.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Accepts matches a sniffed content type against the accept pattern,
// which may be a comma separated list of exact types or "type/*" wildcards.
func (d Descriptor) Accepts(contentType string) bool {
	if d.Files == nil || strings.TrimSpace(d.Files.Accept) == "" {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, pattern := range strings.Split(d.Files.Accept, ",") {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*/*" || pattern == "*":
			return true
		case strings.HasSuffix(pattern, "/*"):
			if strings.HasPrefix(ct, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		case pattern == ct:
			return true
		}
	}
	return false
}

// Multiple reports whether more than one file may be staged.
func (d Descriptor) Multiple() bool {
	return d.Files == nil || d.Files.Multiple
}

package auth

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
)

// Section is a named region of the dashboard that can be shown or hidden.
type Section string

const (
	SectionApp     Section = "app"
	SectionDoctor  Section = "doctor"
	SectionPatient Section = "patient"
)

// Visibility maps role -> sections shown to that role.
type Visibility map[string][]Section

type visibilityFile struct {
	Roles map[string][]Section `yaml:"roles"`
}

// DefaultVisibility shows the doctor and patient areas to their own role.
func DefaultVisibility() Visibility {
	return Visibility{
		string(api.RoleDoctor):  {SectionDoctor},
		string(api.RolePatient): {SectionPatient},
	}
}

// LoadVisibility reads a visibility.yml file. A section may be granted to at
// most one role.
func LoadVisibility(path string) (Visibility, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vf visibilityFile
	if err := yaml.Unmarshal(b, &vf); err != nil {
		return nil, err
	}
	v := Visibility(vf.Roles)
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v Visibility) validate() error {
	owner := map[Section]string{}
	for role, sections := range v {
		for _, s := range sections {
			if s == SectionApp {
				return fmt.Errorf("visibility: section %q is implicit and cannot be granted", s)
			}
			if prev, ok := owner[s]; ok && prev != role {
				return fmt.Errorf("visibility: section %q granted to both %q and %q", s, prev, role)
			}
			owner[s] = role
		}
	}
	return nil
}

// Sections returns what an authenticated user with role may see. Role lookup
// is case-insensitive; an unknown or empty role only sees the app shell.
func (v Visibility) Sections(role api.Role) []Section {
	out := []Section{SectionApp}
	if role == "" {
		return out
	}
	list, ok := v[string(role)]
	if !ok {
		list, ok = v[strings.ToLower(string(role))]
	}
	if !ok {
		return out
	}
	out = append(out, list...)
	sort.Slice(out[1:], func(i, j int) bool { return out[1+i] < out[1+j] })
	return out
}

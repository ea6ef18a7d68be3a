package tariff

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the scheme registry based on flags. Built-in schemes are
// always registered; a YAML file can add more or replace them.
func Configured() *Map {
	m := NewMap()
	defaultScheme := lflag.String("tariff-scheme", SchemeCanonical, "Tariff scheme used when a request does not name one")
	schemesFile := lflag.String("tariff-schemes-file", "", "YAML file with additional tariff schemes")

	lflag.Do(func() {
		if *schemesFile != "" {
			f, err := os.Open(*schemesFile)
			if err != nil {
				panic(fmt.Sprintf("failed to open tariff schemes file: %v", err))
			}
			defer f.Close()
			schemes, err := LoadSchemes(f)
			if err != nil {
				panic(fmt.Sprintf("failed to load tariff schemes from %s: %v", *schemesFile, err))
			}
			for _, s := range schemes {
				m.SetScheme(s)
			}
		}
		if err := m.SetDefault(*defaultScheme); err != nil {
			panic(err.Error())
		}
	})
	return m
}

// Map manages the available tariff schemes.
type Map struct {
	mu            sync.Mutex
	schemes       map[string]*Scheme
	defaultScheme string
}

// NewMap creates a Map holding the built-in schemes with Canonical as the
// default.
func NewMap() *Map {
	m := &Map{
		schemes:       make(map[string]*Scheme),
		defaultScheme: SchemeCanonical,
	}
	m.schemes[SchemeCanonical] = Canonical()
	m.schemes[SchemeLegacy] = Legacy()
	return m
}

// Scheme returns the scheme with the given name, or the default scheme when
// name is empty.
func (m *Map) Scheme(name string) (*Scheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		name = m.defaultScheme
	}
	if s, ok := m.schemes[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown tariff scheme: %s", name)
}

// SetScheme registers s under its name, replacing any existing scheme.
func (m *Map) SetScheme(s *Scheme) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemes[s.Name] = s
}

// SetDefault changes the scheme used for empty names.
func (m *Map) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schemes[name]; !ok {
		return fmt.Errorf("unknown default tariff scheme: %s", name)
	}
	m.defaultScheme = name
	return nil
}

// Default returns the name of the default scheme.
func (m *Map) Default() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultScheme
}

// List returns every registered scheme sorted by name.
func (m *Map) List() []*Scheme {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Scheme, 0, len(m.schemes))
	for _, s := range m.schemes {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Scheme) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

package tariff

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// schemesFile is the layout of a tariff schemes YAML file:
//
//	schemes:
//	  - name: summer
//	    fallback: normal
//	    headroom: [evening_off_peak]
//	    rules:
//	      - category: evening_off_peak
//	        hour_start: 0
//	        hour_end: 8
//	        months: [6, 7, 8]
type schemesFile struct {
	Schemes []*Scheme `yaml:"schemes"`
}

// LoadSchemes decodes and validates the schemes in a YAML document.
func LoadSchemes(r io.Reader) ([]*Scheme, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f schemesFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode tariff schemes: %w", err)
	}

	seen := make(map[string]bool, len(f.Schemes))
	for _, s := range f.Schemes {
		if s == nil {
			return nil, errors.New("empty tariff scheme entry")
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate tariff scheme: %s", s.Name)
		}
		seen[s.Name] = true
	}
	return f.Schemes, nil
}

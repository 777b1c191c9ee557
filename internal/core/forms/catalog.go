package forms

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/insolvency-docs/constants"
)

// Signature pairs a form type with the pattern that identifies it.
type Signature struct {
	Type    constants.FormType
	Pattern *regexp.Regexp
}

// Catalog is evaluated in order; the first matching signature wins.
type Catalog []Signature

// DefaultCatalog is the built-in signature table.
func DefaultCatalog() Catalog {
	return Catalog{
		{Type: constants.FormTypeBankruptcy, Pattern: regexp.MustCompile(`(?i)\b(?:bankruptcy|assignment)\b`)},
		{Type: constants.FormTypeProposal, Pattern: regexp.MustCompile(`(?i)\bproposal\b`)},
		{Type: constants.FormTypeMeetingOfCreditors, Pattern: regexp.MustCompile(`(?i)\bmeeting\s+of\s+creditors\b`)},
		{Type: constants.FormTypeCourtOrder, Pattern: regexp.MustCompile(`(?i)\bcourt\s+order\b|\border\s+of\s+the\s+court\b`)},
	}
}

type catalogFile struct {
	Signatures []struct {
		Type    string `yaml:"type"`
		Pattern string `yaml:"pattern"`
	} `yaml:"signatures"`
}

// LoadCatalog reads a YAML signature table:
//
//	signatures:
//	  - type: court-order
//	    pattern: '(?i)\bcourt\s+order\b'
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Signatures) == 0 {
		return nil, fmt.Errorf("parse catalog: no signatures")
	}
	out := make(Catalog, 0, len(f.Signatures))
	for i, s := range f.Signatures {
		ft, ok := constants.ParseFormType(s.Type)
		if !ok || ft == constants.FormTypeUnknown {
			return nil, fmt.Errorf("signature %d: unknown form type %q", i, s.Type)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %d (%s): %w", i, ft, err)
		}
		out = append(out, Signature{Type: ft, Pattern: re})
	}
	return out, nil
}

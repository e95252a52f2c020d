package matcher

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"fleet-reconciliation-service/internal/models"

	"github.com/goccy/go-yaml"
)

//go:embed data/translations.yaml
var defaultTranslations []byte

// Translations maps the tracker's make/model/color vocabulary to the values
// the vendor uses for the same thing.
type Translations struct {
	Make  map[string][]string `yaml:"make"`
	Model map[string][]string `yaml:"model"`
	Color map[string][]string `yaml:"color"`
}

// DefaultTranslations returns the built-in tables.
func DefaultTranslations() (*Translations, error) {
	return ParseTranslations(defaultTranslations)
}

// LoadTranslations reads tables from a YAML file.
func LoadTranslations(path string) (*Translations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read translations %s: %w", path, err)
	}
	return ParseTranslations(data)
}

// ParseTranslations decodes YAML tables and canonicalizes their case.
func ParseTranslations(data []byte) (*Translations, error) {
	var raw Translations
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse translations: %w", err)
	}

	return &Translations{
		Make:  upperTable(raw.Make),
		Model: upperTable(raw.Model),
		Color: upperTable(raw.Color),
	}, nil
}

func upperTable(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, values := range in {
		key := strings.ToUpper(strings.TrimSpace(k))
		for _, v := range values {
			out[key] = append(out[key], strings.ToUpper(strings.TrimSpace(v)))
		}
	}
	return out
}

func (t *Translations) table(attr models.SecondaryAttribute) map[string][]string {
	switch attr {
	case models.AttrMake:
		return t.Make
	case models.AttrModel:
		return t.Model
	case models.AttrColor:
		return t.Color
	}
	return nil
}

// Compare checks a tracker value against a vendor value for attr. Blank
// input on either side is UNKNOWN; a tracker value missing from the table is
// NO_MAPPING. A vendor value matches when it equals a translation or starts
// with one followed by a space ("CAMRY" matches "CAMRY LE").
func (t *Translations) Compare(attr models.SecondaryAttribute, trackerValue, vendorValue string) models.SecondaryOutcome {
	tv := strings.ToUpper(strings.TrimSpace(trackerValue))
	vv := strings.ToUpper(strings.TrimSpace(vendorValue))
	if tv == "" || vv == "" {
		return models.OutcomeUnknown
	}

	candidates, ok := t.table(attr)[tv]
	if !ok {
		return models.OutcomeNoMapping
	}
	for _, c := range candidates {
		if vv == c || strings.HasPrefix(vv, c+" ") {
			return models.OutcomeMatch
		}
	}
	return models.OutcomeMismatch
}

package terminology

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ehr/clinic/pkg/textfold"
)

var (
	ErrCodeNotFound     = errors.New("diagnosis code not found")
	ErrConstantNotFound = errors.New("clinical constant not found")
)

// LabelSeparator joins code and description in the picker's display value.
const LabelSeparator = " - "

// DiagnosisCode is one entry of the diagnosis catalog.
type DiagnosisCode struct {
	Code        string    `json:"code" yaml:"code"`
	Description string    `json:"description" yaml:"description"`
	Chapter     string    `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	Active      bool      `json:"active" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Label is the "CODE - Description" form shown once a code is picked.
func (d DiagnosisCode) Label() string {
	return d.Code + LabelSeparator + d.Description
}

// SearchText is the folded text the catalog search matches against.
func (d DiagnosisCode) SearchText() string {
	return textfold.Fold(d.Code + " " + d.Description)
}

// ClinicalConstant is a measurable vital sign, e.g. WEIGHT in kg.
type ClinicalConstant struct {
	ID   uuid.UUID `json:"id" yaml:"-"`
	Code string    `json:"code" yaml:"code"`
	Name string    `json:"name" yaml:"name"`
	Unit string    `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Catalog is the document loaded by `catalog import`.
type Catalog struct {
	DiagnosisCodes    []DiagnosisCode    `yaml:"diagnosis_codes"`
	ClinicalConstants []ClinicalConstant `yaml:"clinical_constants"`
}

// ParseCatalog decodes and validates a YAML catalog. Unknown keys, empty
// codes and repeated codes are rejected.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cat Catalog
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return &cat, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate trims every field in place and checks codes are present and
// unique.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.DiagnosisCodes))
	for i := range c.DiagnosisCodes {
		d := &c.DiagnosisCodes[i]
		d.Code = strings.TrimSpace(d.Code)
		d.Description = strings.TrimSpace(d.Description)
		d.Chapter = strings.TrimSpace(d.Chapter)
		if d.Code == "" {
			return fmt.Errorf("diagnosis_codes[%d]: code is required", i)
		}
		if d.Description == "" {
			return fmt.Errorf("diagnosis_codes[%d] %s: description is required", i, d.Code)
		}
		if strings.Contains(d.Code, LabelSeparator) {
			return fmt.Errorf("diagnosis_codes[%d]: code %q contains %q", i, d.Code, LabelSeparator)
		}
		if seen[d.Code] {
			return fmt.Errorf("diagnosis_codes[%d]: duplicate code %s", i, d.Code)
		}
		seen[d.Code] = true
	}

	seen = make(map[string]bool, len(c.ClinicalConstants))
	for i := range c.ClinicalConstants {
		k := &c.ClinicalConstants[i]
		k.Code = strings.ToUpper(strings.TrimSpace(k.Code))
		k.Name = strings.TrimSpace(k.Name)
		k.Unit = strings.TrimSpace(k.Unit)
		if k.Code == "" {
			return fmt.Errorf("clinical_constants[%d]: code is required", i)
		}
		if seen[k.Code] {
			return fmt.Errorf("clinical_constants[%d]: duplicate code %s", i, k.Code)
		}
		seen[k.Code] = true
	}
	return nil
}

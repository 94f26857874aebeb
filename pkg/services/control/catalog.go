package control

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSeverity = domain.SeverityMedium
	NoGuidance      = "No remediation guidance available."
)

var ErrUnknownControl = errors.New("unknown control")

// Catalog is a read-only lookup of control definitions by identifier.
type Catalog struct {
	controls map[string]domain.Control
}

func NewCatalog(controls ...domain.Control) (*Catalog, error) {
	c := &Catalog{controls: make(map[string]domain.Control, len(controls))}
	for _, ctrl := range controls {
		if ctrl.ID == "" {
			return nil, fmt.Errorf("control id cannot be empty")
		}
		if !ctrl.BaseSeverity.Valid() {
			return nil, fmt.Errorf("control %s has invalid base severity %q", ctrl.ID, ctrl.BaseSeverity)
		}
		c.controls[ctrl.ID] = ctrl
	}
	return c, nil
}

// Default returns the built-in SG-001..SG-005 catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtinControls()...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(id string) (domain.Control, error) {
	ctrl, ok := c.controls[id]
	if !ok {
		return domain.Control{}, fmt.Errorf("%w: %s", ErrUnknownControl, id)
	}
	return ctrl, nil
}

func (c *Catalog) List() []domain.Control {
	out := make([]domain.Control, 0, len(c.controls))
	for _, ctrl := range c.controls {
		out = append(out, ctrl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BaseSeverity falls back to medium for unknown controls.
func (c *Catalog) BaseSeverity(id string) domain.Severity {
	if ctrl, ok := c.controls[id]; ok {
		return ctrl.BaseSeverity
	}
	return DefaultSeverity
}

func (c *Catalog) IsRemediationAvailable(id string) bool {
	ctrl, ok := c.controls[id]
	return ok && ctrl.RemediationAvailable
}

func (c *Catalog) RemediationGuidance(id string) string {
	if ctrl, ok := c.controls[id]; ok && ctrl.RemediationGuidance != "" {
		return ctrl.RemediationGuidance
	}
	return NoGuidance
}

type catalogFile struct {
	Controls []controlEntry `yaml:"controls"`
}

type controlEntry struct {
	ID                   string                                   `yaml:"id"`
	Name                 string                                   `yaml:"name"`
	Description          string                                   `yaml:"description"`
	Version              int                                      `yaml:"version"`
	BaseSeverity         string                                   `yaml:"base_severity"`
	ProviderSpecific     map[domain.Provider]domain.CheckMetadata `yaml:"provider_specific"`
	RemediationAvailable *bool                                    `yaml:"remediation_available"`
	RemediationGuidance  string                                   `yaml:"remediation_guidance"`
}

// Load reads a YAML catalog and layers it over the built-in controls. Entries with a
// known id override only the fields they set; new ids are added.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read control catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse control catalog: %w", err)
	}

	merged := make(map[string]domain.Control)
	for _, ctrl := range builtinControls() {
		merged[ctrl.ID] = ctrl
	}

	for _, entry := range file.Controls {
		ctrl, exists := merged[entry.ID]
		if !exists {
			ctrl = domain.Control{ID: entry.ID, Version: 1, BaseSeverity: DefaultSeverity}
		}
		if entry.Name != "" {
			ctrl.Name = entry.Name
		}
		if entry.Description != "" {
			ctrl.Description = entry.Description
		}
		if entry.Version > 0 {
			ctrl.Version = entry.Version
		}
		if entry.BaseSeverity != "" {
			sev, ok := domain.ParseSeverity(entry.BaseSeverity)
			if !ok {
				return nil, fmt.Errorf("control %s: invalid base_severity %q", entry.ID, entry.BaseSeverity)
			}
			ctrl.BaseSeverity = sev
		}
		if len(entry.ProviderSpecific) > 0 {
			ctrl.ProviderSpecific = entry.ProviderSpecific
		}
		if entry.RemediationAvailable != nil {
			ctrl.RemediationAvailable = *entry.RemediationAvailable
		}
		if entry.RemediationGuidance != "" {
			ctrl.RemediationGuidance = entry.RemediationGuidance
		}
		merged[entry.ID] = ctrl
	}

	controls := make([]domain.Control, 0, len(merged))
	for _, ctrl := range merged {
		controls = append(controls, ctrl)
	}
	return NewCatalog(controls...)
}

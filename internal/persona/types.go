// Package persona manages the configurable AI agents an organization runs:
// their prompt, model settings, knowledge collection attachments and tool
// bindings.
package persona

import (
	"errors"
	"time"

	"github.com/silviahq/silvia/internal/tools"
)

// ErrNotFound is returned when a persona does not exist or belongs to a
// different organization. Callers distinguish it with errors.Is.
var ErrNotFound = errors.New("persona not found")

// Default model settings applied when a persona leaves them unset.
const (
	DefaultModel       = "googleai/gemini-2.5-flash"
	DefaultTemperature = 0.3

	// MinTemperature and MaxTemperature bound the sampling temperature.
	// Out-of-range values are clamped, not rejected.
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Persona is a configured agent. CollectionIDs and Tools are loaded alongside
// the row by GetWithBindings; List leaves them empty.
type Persona struct {
	ID           string
	OrgID        string
	Name         string
	Description  string
	SystemPrompt string
	Model        string
	Temperature  float64
	VoiceEnabled bool
	VoiceUUID    string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	CollectionIDs []string
	Tools         []ToolBinding
}

// ToolBinding attaches a tool to a persona with its per-persona configuration.
type ToolBinding struct {
	ToolType  tools.Type
	Config    map[string]any
	IsEnabled bool
}

// EnabledTools returns the types of the persona's enabled, recognized tools,
// preserving binding order. Unknown stored types are skipped so a removed
// tool cannot break the persona.
func (p *Persona) EnabledTools() []tools.Type {
	var enabled []tools.Type
	for _, b := range p.Tools {
		if b.IsEnabled && b.ToolType.Valid() {
			enabled = append(enabled, b.ToolType)
		}
	}
	return enabled
}

// BindingFor returns the binding for the given tool type, or nil when the
// persona has none.
func (p *Persona) BindingFor(t tools.Type) *ToolBinding {
	for i := range p.Tools {
		if p.Tools[i].ToolType == t {
			return &p.Tools[i]
		}
	}
	return nil
}

// clampTemperature forces t into the accepted sampling range.
func clampTemperature(t float64) float64 {
	if t < MinTemperature {
		return MinTemperature
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}

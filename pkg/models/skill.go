package models

// ApplyPoint controls where a skill runs relative to an agent call.
type ApplyPoint string

const (
	// ApplyPre transforms the agent's input before the call.
	ApplyPre ApplyPoint = "pre"
	// ApplyPost transforms the agent's output after the call.
	ApplyPost ApplyPoint = "post"
	// ApplyWrap transforms both input and output.
	ApplyWrap ApplyPoint = "wrap"
)

// Valid returns true if the apply point is a known value.
func (p ApplyPoint) Valid() bool {
	switch p {
	case ApplyPre, ApplyPost, ApplyWrap:
		return true
	default:
		return false
	}
}

// Skill is a named, declarative text transformation loaded from a
// definition file. Skills are read-only at runtime.
type Skill struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Version     string     `json:"version" yaml:"version"`
	Description string     `json:"description" yaml:"description"`
	ApplyPoint  ApplyPoint `json:"apply_point" yaml:"apply_point"`
	// AgentScope lists agent names the skill applies to; empty means all.
	AgentScope []string `json:"agent_scope,omitempty" yaml:"agent_scope"`
	// Model optionally pins the local model used to apply the skill.
	Model string `json:"model,omitempty" yaml:"model"`
	// Content is the instruction body following the front matter.
	Content string `json:"content" yaml:"-"`
	// Path is the definition file the skill was loaded from.
	Path string `json:"path,omitempty" yaml:"-"`
}

// AppliesTo reports whether the skill is scoped to the agent.
func (s Skill) AppliesTo(agent string) bool {
	if len(s.AgentScope) == 0 {
		return true
	}
	for _, a := range s.AgentScope {
		if a == agent || a == "*" {
			return true
		}
	}
	return false
}

// RunsAt reports whether the skill runs at the given point. Wrap skills run at both.
func (s Skill) RunsAt(point ApplyPoint) bool {
	return s.ApplyPoint == point || s.ApplyPoint == ApplyWrap
}

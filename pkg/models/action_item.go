package models

// ActionCategory classifies the area a refinement task addresses.
type ActionCategory string

const (
	CategoryMarket    ActionCategory = "market"
	CategoryProduct   ActionCategory = "product"
	CategoryExecution ActionCategory = "execution"
	CategoryBusiness  ActionCategory = "business"
	CategoryTiming    ActionCategory = "timing"
)

// Valid returns true if the category is a known value.
func (c ActionCategory) Valid() bool {
	switch c {
	case CategoryMarket, CategoryProduct, CategoryExecution, CategoryBusiness, CategoryTiming:
		return true
	default:
		return false
	}
}

// Severity ranks how urgently a concern must be addressed.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Rank orders severities: critical sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// ActionSource records which part of the verdict produced an item.
type ActionSource string

const (
	SourceSynthesis ActionSource = "synthesis"
	SourceFire      ActionSource = "fire"
	SourceDimension ActionSource = "dimension"
)

// ActionItem is a derived refinement task. Items are recomputed per verdict
// and never hand-edited; IDs are stable within a verdict only.
type ActionItem struct {
	ID       string         `json:"id"`
	Concern  string         `json:"concern"`
	Category ActionCategory `json:"category"`
	Severity Severity       `json:"severity"`
	Source   ActionSource   `json:"source"`
}

package governance

import (
	"fmt"
	"sync"
)

// RiskCategory is one dimension of risk a requested action can carry.
type RiskCategory string

const (
	RiskFinancial   RiskCategory = "financial"
	RiskReputation  RiskCategory = "reputation"
	RiskOperational RiskCategory = "operational"
	RiskCompliance  RiskCategory = "compliance"
	RiskSecurity    RiskCategory = "security"
	RiskPerformance RiskCategory = "performance"
)

var allRiskCategories = []RiskCategory{
	RiskFinancial, RiskReputation, RiskOperational, RiskCompliance, RiskSecurity, RiskPerformance,
}

// RiskLevel is an ordinal severity: minimal < low < medium < high < critical.
type RiskLevel int

const (
	RiskMinimal RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskMinimal:
		return "minimal"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Assessment maps each risk category to its scored level for one action.
type Assessment map[RiskCategory]RiskLevel

// Assess scores risk per category from context hints. Categories with no
// matching hint default to minimal. Thresholds are fixed constants, not
// configurable — they are part of the governance policy, not per-deployment
// tuning.
func Assess(action string, context map[string]any) Assessment {
	out := make(Assessment, len(allRiskCategories))
	for _, cat := range allRiskCategories {
		out[cat] = RiskMinimal
	}

	if amount, ok := asFloat(context["amount"]); ok {
		switch {
		case amount > 1000:
			out[RiskFinancial] = RiskCritical
		case amount > 500:
			out[RiskFinancial] = RiskHigh
		case amount > 100:
			out[RiskFinancial] = RiskMedium
		case amount > 10:
			out[RiskFinancial] = RiskLow
		}
	}

	public := truthy(context["public"])
	sensitive := truthy(context["sensitive_data"])
	switch {
	case public && sensitive:
		out[RiskReputation] = RiskHigh
	case public:
		out[RiskReputation] = RiskMedium
	}

	if sensitive {
		out[RiskSecurity] = RiskHigh
	}

	if truthy(context["regulated"]) {
		out[RiskCompliance] = RiskHigh
	}

	if truthy(context["critical_system"]) {
		out[RiskOperational] = RiskCritical
	}

	if truthy(context["resource_intensive"]) {
		out[RiskPerformance] = RiskMedium
	}

	return out
}

// Profile is a named ceiling, per risk category, above which autonomy is
// withheld.
type Profile struct {
	Name        string
	Description string
	Ceilings    map[RiskCategory]RiskLevel
}

func conservativeProfile() Profile {
	return Profile{
		Name:        "conservative",
		Description: "Minimal autonomy; escalates at the first sign of risk.",
		Ceilings: map[RiskCategory]RiskLevel{
			RiskFinancial:   RiskMedium,
			RiskReputation:  RiskLow,
			RiskOperational: RiskLow,
			RiskCompliance:  RiskLow,
			RiskSecurity:    RiskLow,
			RiskPerformance: RiskMedium,
		},
	}
}

func balancedProfile() Profile {
	return Profile{
		Name:        "balanced",
		Description: "Default operating posture; tolerates moderate risk.",
		Ceilings: map[RiskCategory]RiskLevel{
			RiskFinancial:   RiskHigh,
			RiskReputation:  RiskMedium,
			RiskOperational: RiskMedium,
			RiskCompliance:  RiskMedium,
			RiskSecurity:    RiskMedium,
			RiskPerformance: RiskHigh,
		},
	}
}

func aggressiveProfile() Profile {
	return Profile{
		Name:        "aggressive",
		Description: "Maximal autonomy; only critical risk blocks execution.",
		Ceilings: map[RiskCategory]RiskLevel{
			RiskFinancial:   RiskCritical,
			RiskReputation:  RiskHigh,
			RiskOperational: RiskHigh,
			RiskCompliance:  RiskHigh,
			RiskSecurity:    RiskHigh,
			RiskPerformance: RiskCritical,
		},
	}
}

// ToleranceRegistry holds the built-in profiles and tracks which one is
// active.
type ToleranceRegistry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	active   string
}

// NewToleranceRegistry seeds the three built-in profiles with "balanced"
// active.
func NewToleranceRegistry() *ToleranceRegistry {
	r := &ToleranceRegistry{
		profiles: make(map[string]Profile),
		active:   "balanced",
	}
	for _, p := range []Profile{conservativeProfile(), balancedProfile(), aggressiveProfile()} {
		r.profiles[p.Name] = p
	}
	return r
}

// SetProfile switches the active profile by name.
func (r *ToleranceRegistry) SetProfile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[name]; !ok {
		return fmt.Errorf("governance: unknown risk tolerance profile %q", name)
	}
	r.active = name
	return nil
}

// UpdateTolerance adjusts one category's ceiling on the active profile.
func (r *ToleranceRegistry) UpdateTolerance(category RiskCategory, level RiskLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[r.active]
	if p.Ceilings == nil {
		p.Ceilings = make(map[RiskCategory]RiskLevel)
	}
	p.Ceilings[category] = level
	r.profiles[r.active] = p
}

// Active returns a copy of the currently active profile.
func (r *ToleranceRegistry) Active() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[r.active]
}

// WithinTolerance compares each category's scored level to the active
// profile's ceiling, returning false with a reason on the first category
// that exceeds tolerance.
func (r *ToleranceRegistry) WithinTolerance(assessment Assessment) (bool, string) {
	profile := r.Active()
	for _, cat := range allRiskCategories {
		scored := assessment[cat]
		ceiling, ok := profile.Ceilings[cat]
		if !ok {
			continue
		}
		if scored > ceiling {
			return false, fmt.Sprintf("Risk exceeds tolerance: %s is %s, ceiling is %s", cat, scored, ceiling)
		}
	}
	return true, ""
}

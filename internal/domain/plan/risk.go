package plan

import "fmt"

// RiskLevel grades how much damage a plan could do. Read-only analysis is
// low, drafts and content changes are medium, anything touching payment,
// fulfillment or live spend is high.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskRank = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// Valid reports whether r is a known risk level
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// AtLeast reports whether r is as severe as other or more
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

// ParseRiskLevel converts s to a RiskLevel, rejecting unknown values
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

package domain

import "github.com/shopspring/decimal"

// ProfitPolicy is the single admission threshold policy shared by the
// detector and the execution gate. Percentages are in percent units.
type ProfitPolicy struct {
	MinPct      decimal.Decimal
	MaxPct      decimal.Decimal
	PerStrategy map[Strategy]decimal.Decimal
}

// MinFor returns the strategy's threshold. An override can raise the global
// floor but never lower it.
func (p ProfitPolicy) MinFor(s Strategy) decimal.Decimal {
	if v, ok := p.PerStrategy[s]; ok && v.GreaterThan(p.MinPct) {
		return v
	}
	return p.MinPct
}

// Accepts reports whether pct lies within [MinFor(s), MaxPct].
func (p ProfitPolicy) Accepts(s Strategy, pct decimal.Decimal) bool {
	if pct.LessThan(p.MinFor(s)) {
		return false
	}
	return !p.MaxPct.IsPositive() || pct.LessThanOrEqual(p.MaxPct)
}
